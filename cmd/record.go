package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/carebridge/carebridge/internal/model"
	"github.com/carebridge/carebridge/internal/patient"
)

// extractionPrompt asks the vision model for a faithful transcription.
// The result still passes the PII scrubber before it is stored.
const extractionPrompt = `Transcribe the medical document in this image into plain text. Keep dosages, dates and clinical terms exactly as written. If part of the image is unreadable, write [unreadable] rather than guessing.`

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Manage a patient's medications and health records",
}

var medFlags struct {
	code     string
	name     string
	dosage   string
	schedule string
	notes    string
}

var medicationCmd = &cobra.Command{
	Use:   "medication",
	Short: "Add a medication entry",
	RunE:  runAddMedication,
}

var medListCode string

var medicationsCmd = &cobra.Command{
	Use:   "medications",
	Short: "List active medications",
	RunE:  runListMedications,
}

var healthFlags struct {
	code       string
	recordType string
	date       string
	summary    string
	image      string
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Add a health record",
	Long: `Add a health record from a text summary or a scanned image.

With --image, the vision model transcribes the document first. Either
way the text is scrubbed of personal identifiers before encryption.`,
	RunE: runAddHealth,
}

var healthListCode string

var healthListCmd = &cobra.Command{
	Use:   "list",
	Short: "List health records, newest first",
	RunE:  runListHealth,
}

func init() {
	medicationCmd.Flags().StringVar(&medFlags.code, "code", "", "patient code (required)")
	medicationCmd.Flags().StringVar(&medFlags.name, "name", "", "medication name (required)")
	medicationCmd.Flags().StringVar(&medFlags.dosage, "dosage", "", "dosage, e.g. 10mg")
	medicationCmd.Flags().StringVar(&medFlags.schedule, "schedule", "", "schedule, e.g. morning and evening")
	medicationCmd.Flags().StringVar(&medFlags.notes, "notes", "", "free-form notes")
	_ = medicationCmd.MarkFlagRequired("code")
	_ = medicationCmd.MarkFlagRequired("name")

	medicationsCmd.Flags().StringVar(&medListCode, "code", "", "patient code (required)")
	_ = medicationsCmd.MarkFlagRequired("code")

	healthCmd.Flags().StringVar(&healthFlags.code, "code", "", "patient code (required)")
	healthCmd.Flags().StringVar(&healthFlags.recordType, "type", "note", "record type, e.g. diagnosis, lab, note")
	healthCmd.Flags().StringVar(&healthFlags.date, "date", "", "record date YYYY-MM-DD (default today)")
	healthCmd.Flags().StringVar(&healthFlags.summary, "summary", "", "record text")
	healthCmd.Flags().StringVar(&healthFlags.image, "image", "", "scanned document image to transcribe")
	_ = healthCmd.MarkFlagRequired("code")

	healthListCmd.Flags().StringVar(&healthListCode, "code", "", "patient code (required)")
	_ = healthListCmd.MarkFlagRequired("code")

	recordCmd.AddCommand(medicationCmd, medicationsCmd, healthCmd, healthListCmd)
	rootCmd.AddCommand(recordCmd)
}

func runAddMedication(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lookupKey, err := resolveKey(medFlags.code)
	if err != nil {
		return err
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	med := patient.Medication{
		Name:      medFlags.name,
		Dosage:    medFlags.dosage,
		Schedule:  medFlags.schedule,
		Notes:     medFlags.notes,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Patients.AddMedication(ctx, lookupKey, med); err != nil {
		return fmt.Errorf("adding medication: %w", err)
	}
	fmt.Printf("Added %s.\n", med.Name)
	return nil
}

func runListMedications(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lookupKey, err := resolveKey(medListCode)
	if err != nil {
		return err
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	meds, err := a.Patients.ListMedications(ctx, lookupKey)
	if err != nil {
		return fmt.Errorf("listing medications: %w", err)
	}
	if len(meds) == 0 {
		fmt.Println("No medications recorded.")
		return nil
	}
	for _, med := range meds {
		line := "  " + med.Name
		if med.Dosage != "" {
			line += " " + med.Dosage
		}
		if med.Schedule != "" {
			line += ", " + med.Schedule
		}
		if med.Notes != "" {
			line += " (" + med.Notes + ")"
		}
		fmt.Println(line)
	}
	return nil
}

func runAddHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lookupKey, err := resolveKey(healthFlags.code)
	if err != nil {
		return err
	}
	if healthFlags.summary == "" && healthFlags.image == "" {
		return fmt.Errorf("either --summary or --image is required")
	}

	recordDate := time.Now().UTC()
	if healthFlags.date != "" {
		parsed, err := time.Parse("2006-01-02", healthFlags.date)
		if err != nil {
			return fmt.Errorf("invalid --date, want YYYY-MM-DD: %w", err)
		}
		recordDate = parsed
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	summary := healthFlags.summary
	if healthFlags.image != "" {
		summary, err = transcribeImage(cmd, a.Vision, healthFlags.image)
		if err != nil {
			return err
		}
	}

	rec := patient.HealthRecord{
		RecordType: healthFlags.recordType,
		Summary:    summary,
		RecordDate: recordDate,
		CreatedAt:  time.Now().UTC(),
	}
	if err := a.Patients.AddHealthRecord(ctx, lookupKey, rec); err != nil {
		return fmt.Errorf("adding health record: %w", err)
	}
	fmt.Printf("Added %s record dated %s.\n", rec.RecordType, recordDate.Format("2006-01-02"))
	return nil
}

func runListHealth(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	lookupKey, err := resolveKey(healthListCode)
	if err != nil {
		return err
	}

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.Patients.ListHealthRecords(ctx, lookupKey)
	if err != nil {
		return fmt.Errorf("listing health records: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("No health records.")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("[%s] %s\n%s\n\n", rec.RecordDate.Format("2006-01-02"), rec.RecordType, rec.Summary)
	}
	return nil
}

// transcribeImage runs the vision model over a scanned document.
func transcribeImage(cmd *cobra.Command, vision model.Generator, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}

	mimeType, err := imageMIMEType(path)
	if err != nil {
		return "", err
	}

	text, err := vision.Generate(cmd.Context(), model.GenerateRequest{
		Prompt:   extractionPrompt,
		Image:    data,
		MIMEType: mimeType,
	})
	if err != nil {
		return "", fmt.Errorf("transcribing image: %w", err)
	}
	return text, nil
}

func imageMIMEType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png", nil
	case ".jpg", ".jpeg":
		return "image/jpeg", nil
	case ".webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("unsupported image type %q, want png, jpeg or webp", filepath.Ext(path))
	}
}
