package fetcher

import (
	"context"

	"anemia-detect-go/internal/model"
)

// Analyzer 贫血分析后端
type Analyzer interface {
	Analyze(ctx context.Context, req model.AnalysisRequest) (*model.AnalysisResult, error)
}

// Pinger 后端健康检查
type Pinger interface {
	Ping(ctx context.Context) error
}
