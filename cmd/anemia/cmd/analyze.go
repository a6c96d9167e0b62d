package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"anemia-detect-go/internal/fetcher"
	"anemia-detect-go/internal/model"
	"anemia-detect-go/internal/service"
	"anemia-detect-go/internal/utils"
)

var (
	analyzeForm model.InputForm
	analyzeJSON bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Submit one set of blood-test values",
	Long: `Submit one set of blood-test values to the analysis backend and print the result.

Example:
  anemia analyze --genero femenino --hemoglobina 10.5 --mch 26 --mchc 30 --mcv 78
  anemia analyze --genero masculino --hemoglobina 14.2 --mch 29 --mchc 33 --mcv 88 --json`,
	Args: cobra.NoArgs,
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeForm.Gender, "genero", "", "masculino | femenino")
	analyzeCmd.Flags().StringVar(&analyzeForm.Hemoglobin, "hemoglobina", "", "hemoglobin (g/dL)")
	analyzeCmd.Flags().StringVar(&analyzeForm.MCH, "mch", "", "mean corpuscular hemoglobin (pg)")
	analyzeCmd.Flags().StringVar(&analyzeForm.MCHC, "mchc", "", "mean corpuscular hemoglobin concentration (g/dL)")
	analyzeCmd.Flags().StringVar(&analyzeForm.MCV, "mcv", "", "mean corpuscular volume (fL)")
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "print the raw result as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	backend := fetcher.NewBackendClient(cfg.BackendURL, cfg.BackendTimeout, logger)
	result, err := analyzeOnce(cmd.Context(), service.NewSession(backend, logger), analyzeForm)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if analyzeJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(out, result)
	return nil
}

// analyzeOnce 填表并提交，错误转为用户提示
func analyzeOnce(ctx context.Context, s *service.Session, form model.InputForm) (*model.AnalysisResult, error) {
	for _, field := range model.AllFields {
		if err := s.Edit(field, form.Get(field)); err != nil {
			return nil, err
		}
	}

	result, err := s.Submit(ctx)
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return nil, fmt.Errorf("%s (%w)", service.Notice(err), verr)
	case err != nil:
		return nil, errors.New(model.NoticeFailed)
	}
	return result, nil
}

func printResult(w io.Writer, r *model.AnalysisResult) {
	view := model.ViewFor(r.Branch())

	fmt.Fprintf(w, "%s\n", view.Title)
	if r.Message != "" {
		fmt.Fprintf(w, "%s\n", r.Message)
	}

	v := r.SubmittedValues
	fmt.Fprintln(w, "\nValores Ingresados:")
	fmt.Fprintf(w, "  Género: %s\n", v.Gender)
	fmt.Fprintf(w, "  Hemoglobina: %s\n", utils.FormatWithUnit(v.Hemoglobin, "g/dL"))
	fmt.Fprintf(w, "  MCH: %s\n", utils.FormatWithUnit(v.MCH, "pg"))
	fmt.Fprintf(w, "  MCHC: %s\n", utils.FormatWithUnit(v.MCHC, "g/dL"))
	fmt.Fprintf(w, "  MCV: %s\n", utils.FormatWithUnit(v.MCV, "fL"))

	fmt.Fprintf(w, "\nResultado: %s\n", view.Verdict)
	if r.Severity != "" {
		fmt.Fprintf(w, "Severidad: %s\n", r.Severity)
	}
	if r.Probability != nil {
		fmt.Fprintf(w, "Probabilidad: %s\n", utils.FormatPercent(*r.Probability))
	}

	fmt.Fprintf(w, "\n%s:\n", view.PlanSubtitle)
	for i, rec := range view.Recommendations {
		fmt.Fprintf(w, "  %d. %s\n", i+1, rec)
	}
	for _, rec := range r.Recommendations {
		fmt.Fprintf(w, "  - %s\n", rec)
	}

	fmt.Fprintln(w, "\nGuía Nutricional:")
	for _, card := range model.NutritionGuide {
		fmt.Fprintf(w, "  %s: %s\n", card.Title, card.Examples)
	}
	fmt.Fprintf(w, "\n%s\n", model.Disclaimer)
}
