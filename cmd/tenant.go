package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/vface/internal/config"
	"github.com/kozaktomas/vface/internal/logger"
	"github.com/kozaktomas/vface/internal/secrets"
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage API clients",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an API client and print its secret",
	Long: `Create a new tenant with an API client id and a generated secret.
Only the bcrypt hash of the secret is stored, so the secret is printed once
and cannot be recovered later.`,
	RunE: runTenantCreate,
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantCreateCmd)

	tenantCreateCmd.Flags().String("name", "", "Display name of the tenant (required)")
	tenantCreateCmd.Flags().String("client", "", "Client id (defaults to a random UUID)")
	tenantCreateCmd.Flags().Bool("json", false, "Output as JSON")
	_ = tenantCreateCmd.MarkFlagRequired("name")
}

type createdTenant struct {
	TenantID int64  `json:"merid"`
	Name     string `json:"name"`
	Client   string `json:"client"`
	Key      string `json:"key"`
}

func runTenantCreate(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(mustGetString(cmd, "name"))
	if name == "" {
		return fmt.Errorf("--name must not be blank")
	}
	clientID := strings.TrimSpace(mustGetString(cmd, "client"))
	if clientID == "" {
		clientID = uuid.NewString()
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return err
	}

	secret, err := secrets.Generate()
	if err != nil {
		return err
	}
	hash, err := secrets.Hash(secret)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := openStore(ctx, cfg, logger.Discard())
	if err != nil {
		return err
	}
	defer store.Close()

	tenant, err := store.CreateClient(ctx, clientID, hash, name)
	if err != nil {
		return fmt.Errorf("creating client %s: %w", clientID, err)
	}

	out := createdTenant{TenantID: int64(tenant), Name: name, Client: clientID, Key: secret}
	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Tenant %d (%s) created\n", out.TenantID, out.Name)
	fmt.Printf("  Client: %s\n", out.Client)
	fmt.Printf("  Key:    %s\n", out.Key)
	fmt.Println("Store the key now, it cannot be shown again.")
	return nil
}
