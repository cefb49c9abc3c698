package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/Strob0t/CredForge/internal/adapter/postgres"
	"github.com/Strob0t/CredForge/internal/config"
	"github.com/Strob0t/CredForge/internal/domain/credential"
	"github.com/Strob0t/CredForge/internal/domain/provider"
	"github.com/Strob0t/CredForge/internal/service"
)

// adminActor names the CLI in audit logs.
const adminActor = "admin-cli"

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-tenant":
		return runAdminCreateTenant(args[1:])
	case "keygen":
		return runAdminKeygen(args[1:])
	case "set-credentials":
		return runAdminSetCredentials(args[1:])
	case "show":
		return runAdminShow(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: credforge admin <command> [options]

Commands:
  create-tenant     Create a tenant
  keygen            Generate a tenant's encryption key pair
  set-credentials   Save custom provider or model credentials
  show              Print a tenant's provider configurations (secrets masked)
  migrate           Show, apply or roll back schema migrations (status|up|down)
  help              Show this help message

Examples:
  credforge admin create-tenant --name acme
  credforge admin keygen --tenant 3f6c1d2e-8a4b-4c5d-9e7f-112233445566
  credforge admin set-credentials --tenant <id> --provider openai --field organization=org-1
  credforge admin set-credentials --tenant <id> --provider azure_openai --model gpt-4 --model-type llm
  credforge admin show --tenant <id>
  credforge admin migrate down --steps 1
`)
}

func loadAdminApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newApp(ctx, cfg, nil)
}

func runAdminMigrate(args []string) error {
	action := "status"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		action, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	steps := fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !slices.Contains([]string{"status", "up", "down"}, action) {
		return fmt.Errorf("unknown migrate action %q (want status, up or down)", action)
	}
	if action == "down" && *steps < 1 {
		return errors.New("--steps must be at least 1")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := context.Background()
	dsn := cfg.Postgres.DSN

	switch action {
	case "status":
	case "up":
		if err := postgres.RunMigrations(ctx, dsn); err != nil {
			return err
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, dsn, *steps); err != nil {
			return err
		}
	}

	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Schema version: %d\n", v)
	return nil
}

func runAdminCreateTenant(args []string) error {
	fs := flag.NewFlagSet("create-tenant", flag.ContinueOnError)
	name := fs.String("name", "", "tenant name (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return errors.New("--name is required")
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	t, err := a.tenants.Create(ctx, *name)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Tenant created: %s (id=%s)\n", t.Name, t.ID)
	return nil
}

func runAdminKeygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant ID (required)")
	force := fs.Bool("force", false, "replace an existing key pair; stored credentials become unreadable")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return errors.New("--tenant is required")
	}

	ctx := service.WithActor(context.Background(), adminActor)
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.tenants.ProvisionKeyPair(ctx, *tenantID, *force); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Key pair generated for tenant %s\n", *tenantID)
	return nil
}

// fieldsFlag collects repeated --field key=value pairs.
type fieldsFlag map[string]string

func (f fieldsFlag) String() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return strings.Join(keys, ",")
}

func (f fieldsFlag) Set(v string) error {
	k, val, ok := strings.Cut(v, "=")
	if !ok || k == "" {
		return fmt.Errorf("field %q must be key=value", v)
	}
	f[k] = val
	return nil
}

func runAdminSetCredentials(args []string) error {
	fs := flag.NewFlagSet("set-credentials", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant ID (required)")
	providerName := fs.String("provider", "", "provider name (required)")
	model := fs.String("model", "", "model name; saves model-level credentials")
	modelType := fs.String("model-type", string(provider.ModelTypeLLM), "model type for --model")
	fields := fieldsFlag{}
	fs.Var(fields, "field", "non-secret credential field as key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return errors.New("--tenant is required")
	}
	if *providerName == "" {
		return errors.New("--provider is required")
	}

	ctx := service.WithActor(context.Background(), adminActor)
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	cfg, err := a.providers.GetConfiguration(ctx, *tenantID, *providerName)
	if err != nil {
		return fmt.Errorf("load provider: %w", err)
	}

	secretVars := cfg.Schema.ProviderSecretVariables()
	if *model != "" {
		secretVars = cfg.Schema.ModelSecretVariables()
	}

	creds := credential.Credentials{}
	for k, v := range fields {
		if slices.Contains(secretVars, k) {
			return fmt.Errorf("%s is secret and must be entered at the prompt", k)
		}
		creds[k] = v
	}
	for _, k := range secretVars {
		v, err := promptPassword(k + ": ")
		if err != nil {
			return fmt.Errorf("read %s: %w", k, err)
		}
		if v != "" {
			creds[k] = v
		}
	}

	if *model != "" {
		err = a.providers.AddOrUpdateCustomModelCredentials(ctx, cfg, *model, provider.ModelType(*modelType), creds)
	} else {
		err = a.providers.AddOrUpdateCustomCredentials(ctx, cfg, creds)
	}
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Credentials saved for %s (tenant=%s)\n", *providerName, *tenantID)
	return nil
}

func runAdminShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	tenantID := fs.String("tenant", "", "tenant ID (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return errors.New("--tenant is required")
	}

	ctx := context.Background()
	a, err := loadAdminApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	filter := provider.Filter{Include: a.cfg.Filter.Include, Exclude: a.cfg.Filter.Exclude}
	cfgs, err := a.providers.GetConfigurations(ctx, *tenantID, filter)
	if err != nil {
		return fmt.Errorf("load configurations: %w", err)
	}
	if cfgs.Len() == 0 {
		fmt.Println("No providers found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tPREFERRED\tUSING\tSYSTEM\tCREDENTIALS")
	for _, cfg := range cfgs.Values() {
		system := "-"
		if status, ok := cfg.GetSystemConfigurationStatus(); ok {
			system = fmt.Sprintf("%s/%s", status, cfg.SystemConfiguration.CurrentQuotaType)
		}
		creds := "-"
		if c := cfg.GetCustomCredentials(true); c != nil {
			b, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("encode %s credentials: %w", cfg.Provider, err)
			}
			creds = string(b)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			cfg.Provider, cfg.PreferredProviderType, cfg.UsingProviderType, system, creds)
		for _, m := range cfg.CustomConfiguration.Models {
			b, err := json.Marshal(cfg.GetCustomModelCredentials(m.Model, m.ModelType, true))
			if err != nil {
				return fmt.Errorf("encode %s model credentials: %w", cfg.Provider, err)
			}
			_, _ = fmt.Fprintf(w, "  %s/%s\t\t\t\t%s\n", m.Model, m.ModelType, b)
		}
	}
	return w.Flush()
}

// promptPassword reads a secret from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
