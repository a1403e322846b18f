package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/carebridge/carebridge/internal/patient"
)

var registerFlags struct {
	firstName string
	lastName  string
	age       int
	gender    string
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a patient and print their code",
	Long: `Register creates a patient profile and prints the patient code.

The code is shown exactly once and cannot be recovered. Anyone caring
for the patient uses this code to ask questions and view history, so
write it down somewhere safe.`,
	RunE: runRegister,
}

func init() {
	registerCmd.Flags().StringVar(&registerFlags.firstName, "first-name", "", "patient first name")
	registerCmd.Flags().StringVar(&registerFlags.lastName, "last-name", "", "patient last name")
	registerCmd.Flags().IntVar(&registerFlags.age, "age", 0, "patient age")
	registerCmd.Flags().StringVar(&registerFlags.gender, "gender", "", "patient gender")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := setupApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	code, lookupKey, err := a.Registrar.NewCode(ctx)
	if err != nil {
		return fmt.Errorf("generating patient code: %w", err)
	}

	profile := patient.Profile{
		FirstName: registerFlags.firstName,
		LastName:  registerFlags.lastName,
		Age:       registerFlags.age,
		Gender:    registerFlags.gender,
		CreatedAt: time.Now().UTC(),
	}
	if err := a.Patients.CreateProfile(ctx, lookupKey, profile); err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}

	fmt.Println("Patient registered.")
	fmt.Println()
	fmt.Printf("  Patient code: %s\n", code)
	fmt.Println()
	fmt.Println("This code is shown once and cannot be recovered. Keep it safe.")
	return nil
}
