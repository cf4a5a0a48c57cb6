package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/services"
)

var validatePing bool

// stdin is the wizard input, replaceable in tests.
var stdin io.Reader = os.Stdin

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View, validate and change the configuration file.

Keys use dotted paths such as search.top_k or embedding.provider.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	RunE:  runConfigValidate,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE:  runConfigPath,
}

var configWizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Interactive setup wizard",
	Long:  `Run an interactive wizard to choose the embedding and answer providers.`,
	RunE:  runConfigWizard,
}

func init() {
	configValidateCmd.Flags().BoolVar(&validatePing, "ping", false, "also check the embedding and answer providers are reachable")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	configCmd.AddCommand(configWizardCmd)
	rootCmd.AddCommand(configCmd)
}

func settingsService() (*services.SettingsService, string, error) {
	if openConfig == nil {
		return nil, "", errors.New("config store not configured")
	}
	store, err := openConfig(configPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open config: %w", err)
	}
	return services.NewSettingsService(store), store.Path(), nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	settings, path, err := settingsService()
	if err != nil {
		return err
	}
	cfg := settings.Build()

	cmd.Println(headerStyle.Render("Current Configuration"))
	cmd.Printf("File: %s\n\n", path)

	cmd.Println("[Chunking]")
	cmd.Printf("  Size: %d  Overlap: %d\n\n", cfg.Chunking.Size, cfg.Chunking.Overlap)

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", cfg.Embedding.Provider.Description())
	cmd.Printf("  Model: %s (%d dimensions)\n", cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if cfg.Embedding.BaseURL != "" {
		cmd.Printf("  Base URL: %s\n", cfg.Embedding.BaseURL)
	}
	printAPIKey(cmd, cfg.Embedding.Provider, cfg.Embedding.APIKey)
	cmd.Println()

	cmd.Println("[Index]")
	cmd.Printf("  Backend: %s\n", cfg.Index.Backend)
	cmd.Printf("  Name: %s\n", cfg.Index.Name)
	if cfg.Index.Path != "" {
		cmd.Printf("  Path: %s\n", cfg.Index.Path)
	}
	if cfg.Index.DSN != "" {
		cmd.Printf("  DSN: %s\n", maskAPIKey(cfg.Index.DSN))
	}
	cmd.Println()

	cmd.Println("[Search]")
	cmd.Printf("  Mode: %s  Top K: %d  Min score: %.2f\n", cfg.Search.Mode, cfg.Search.TopK, cfg.Search.MinScore)
	cmd.Printf("  Weights: vector %.2f, text %.2f\n", cfg.Search.VectorWeight, cfg.Search.TextWeight)
	cmd.Printf("  Cache: %d entries, TTL %s (search %s)\n\n", cfg.Cache.MaxSize, cfg.Cache.DefaultTTL, cfg.Search.CacheTTL)

	cmd.Println("[LLM]")
	cmd.Printf("  Provider: %s\n", cfg.LLM.Provider.Description())
	if cfg.LLM.Model != "" {
		cmd.Printf("  Model: %s\n", cfg.LLM.Model)
	}
	printAPIKey(cmd, cfg.LLM.Provider, cfg.LLM.APIKey)
	cmd.Println()

	cmd.Println("[Rate Limits]")
	classes := make([]string, 0, len(cfg.RateLimits))
	for class := range cfg.RateLimits {
		classes = append(classes, string(class))
	}
	sort.Strings(classes)
	for _, class := range classes {
		l := cfg.RateLimits[domain.EndpointClass(class)]
		cmd.Printf("  %-8s %d/min, burst %d\n", class, l.RequestsPerMinute, l.Burst)
	}
	cmd.Println()

	cmd.Println("[Resilience]")
	cmd.Printf("  Breaker: %d failures, recovery %s\n", cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTimeout)
	cmd.Printf("  Retry: %d attempts, base %s, max %s\n\n", cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay, cfg.Retry.MaxDelay)

	if err := settings.Validate(cfg); err != nil {
		cmd.Println(errorStyle.Render("Configuration is invalid:"))
		printConfigErrors(cmd, err)
		cmd.Println("Run 'sercha-rag config wizard' or 'sercha-rag config set' to fix it.")
	} else {
		cmd.Println(successStyle.Render("Configuration is valid."))
	}
	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	settings, _, err := settingsService()
	if err != nil {
		return err
	}
	cfg := settings.Build()
	if err := settings.Validate(cfg); err != nil {
		printConfigErrors(cmd, err)
		return errors.New("configuration is invalid")
	}
	cmd.Println("Configuration is valid.")

	if !validatePing {
		return nil
	}
	if checkProviders == nil {
		return errors.New("provider checks not configured")
	}
	if err := checkProviders(cfg); err != nil {
		printConfigErrors(cmd, err)
		return errors.New("providers are unreachable")
	}
	cmd.Println(successStyle.Render("Providers are reachable."))
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	settings, _, err := settingsService()
	if err != nil {
		return err
	}
	if err := settings.Set(args[0], args[1]); err != nil {
		return fmt.Errorf("failed to set %s: %w", args[0], err)
	}
	cmd.Printf("Set %s = %s\n", args[0], args[1])

	if err := settings.Validate(settings.Build()); err != nil {
		cmd.Println(errorStyle.Render("Warning: configuration is now invalid:"))
		printConfigErrors(cmd, err)
	}
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	_, path, err := settingsService()
	if err != nil {
		return err
	}
	cmd.Println(path)
	return nil
}

func runConfigWizard(cmd *cobra.Command, _ []string) error {
	settings, _, err := settingsService()
	if err != nil {
		return err
	}

	cmd.Println("sercha-rag Setup Wizard")
	cmd.Println("=======================")
	cmd.Println()

	reader := bufio.NewReader(stdin)

	cmd.Println("Step 1: Embedding Provider")
	cmd.Println("--------------------------")
	if err := configureEmbeddingProvider(cmd, reader, settings); err != nil {
		return err
	}

	cmd.Println("Step 2: Answer Provider")
	cmd.Println("-----------------------")
	if err := configureLLMProvider(cmd, reader, settings); err != nil {
		return err
	}

	cmd.Println("Configuration Complete!")
	cmd.Println("=======================")
	if err := settings.Validate(settings.Build()); err != nil {
		cmd.Printf("Warning: %v\n", err)
	} else {
		cmd.Println("All settings are valid and saved.")
	}
	return nil
}

func configureEmbeddingProvider(cmd *cobra.Command, reader *bufio.Reader, settings *services.SettingsService) error {
	providers := []domain.AIProvider{domain.AIProviderLocal, domain.AIProviderOllama, domain.AIProviderOpenAI}
	provider, model, apiKey, err := chooseProvider(cmd, reader, providers, domain.DefaultEmbeddingModels())
	if err != nil {
		return err
	}

	values := map[string]string{
		"embedding.provider": string(provider),
		"embedding.model":    model,
	}
	if dims, ok := domain.EmbeddingDimensions()[model]; ok {
		values["embedding.dimensions"] = strconv.Itoa(dims)
	}
	if apiKey != "" {
		values["embedding.api_key"] = apiKey
	}
	if err := setAll(settings, values); err != nil {
		return fmt.Errorf("failed to configure embedding provider: %w", err)
	}

	cmd.Printf("Embedding provider configured: %s (%s)\n\n", provider.Description(), model)
	return nil
}

func configureLLMProvider(cmd *cobra.Command, reader *bufio.Reader, settings *services.SettingsService) error {
	providers := []domain.AIProvider{domain.AIProviderNone, domain.AIProviderOllama, domain.AIProviderOpenAI, domain.AIProviderAnthropic}
	provider, model, apiKey, err := chooseProvider(cmd, reader, providers, domain.DefaultLLMModels())
	if err != nil {
		return err
	}

	values := map[string]string{"llm.provider": string(provider)}
	if model != "" {
		values["llm.model"] = model
	}
	if apiKey != "" {
		values["llm.api_key"] = apiKey
	}
	if err := setAll(settings, values); err != nil {
		return fmt.Errorf("failed to configure LLM provider: %w", err)
	}

	cmd.Printf("Answer provider configured: %s\n\n", provider.Description())
	return nil
}

// chooseProvider prompts for a provider, its model and, when needed, an API key.
func chooseProvider(
	cmd *cobra.Command, reader *bufio.Reader, providers []domain.AIProvider, defaults map[domain.AIProvider]string,
) (provider domain.AIProvider, model, apiKey string, err error) {
	for i, p := range providers {
		cmd.Printf("  %d. %s\n", i+1, p.Description())
	}
	cmd.Print("\nEnter choice [1]: ")
	idx := parseChoice(readLine(reader), len(providers), 1)
	provider = providers[idx-1]
	if provider == domain.AIProviderNone {
		return provider, "", "", nil
	}

	defaultModel := defaults[provider]
	cmd.Printf("Enter model name [%s]: ", defaultModel)
	if model = readLine(reader); model == "" {
		model = defaultModel
	}

	if provider.RequiresAPIKey() {
		cmd.Print("Enter API key (blank to use the environment): ")
		apiKey = readPassword(reader)
		cmd.Println()
	}
	return provider, model, apiKey, nil
}

func setAll(settings *services.SettingsService, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := settings.Set(k, values[k]); err != nil {
			return err
		}
	}
	return nil
}

func printAPIKey(cmd *cobra.Command, provider domain.AIProvider, key string) {
	if !provider.RequiresAPIKey() {
		return
	}
	if key == "" {
		cmd.Println("  API Key: (not set)")
		return
	}
	cmd.Printf("  API Key: %s\n", maskAPIKey(key))
}

// printConfigErrors prints one line per joined configuration error.
func printConfigErrors(cmd *cobra.Command, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		cmd.Printf("  - %s\n", line)
	}
}

// Helper functions.

//nolint:errcheck // CLI helper, error ignored for UX
func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func parseChoice(input string, maxVal, defaultVal int) int {
	if input == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(input)
	if err != nil || val < 1 || val > maxVal {
		return defaultVal
	}
	return val
}

// readPassword reads without echo on a terminal and falls back to reader.
func readPassword(reader *bufio.Reader) string {
	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		password, err := term.ReadPassword(int(f.Fd()))
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}
	return readLine(reader)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
