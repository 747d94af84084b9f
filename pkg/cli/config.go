package cli

import (
	"context"
	"os"
	"time"

	"github.com/foodlens/foodlens/pkg/adapter"
	"github.com/foodlens/foodlens/pkg/barcode"
	"github.com/foodlens/foodlens/pkg/credential"
	"github.com/foodlens/foodlens/pkg/fooddata"
	"github.com/foodlens/foodlens/pkg/repository"
	"github.com/foodlens/foodlens/pkg/usecase/analyze"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	configPath string

	// Credentials
	geminiAPIKeys []string
	usdaAPIKeys   []string

	// Inference
	geminiModel      string
	identifyAttempts int64
	maxIterations    int64
	acceptConfidence float64

	// Stage-2 scheduling
	maxConcurrentFoods int64
	foodTimeout        time.Duration

	// Barcode side path
	openFoodFacts bool
	noBarcode     bool

	// Repository
	project  string
	database string
}

// fileConfig is the optional YAML configuration file. Flags and
// environment variables take precedence over file values.
type fileConfig struct {
	GeminiAPIKeys []string `yaml:"gemini_api_keys"`
	USDAAPIKeys   []string `yaml:"usda_api_keys"`
	GeminiModel   string   `yaml:"gemini_model"`
	Project       string   `yaml:"project"`
	Database      string   `yaml:"database"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML configuration file",
			Sources:     cli.EnvVars("FOODLENS_CONFIG"),
			Destination: &cfg.configPath,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID (enables Firestore persistence)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
	}
}

// llmFlags returns flags for inference configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "gemini-api-key",
			Usage:       "Gemini API key (repeatable; rotated on rate limits)",
			Sources:     cli.EnvVars("GEMINI_API_KEYS", "GEMINI_API_KEY"),
			Destination: &cfg.geminiAPIKeys,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Gemini model for vision and resolution",
			Value:       "gemini-2.5-flash",
			Sources:     cli.EnvVars("GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
		&cli.IntFlag{
			Name:        "identify-attempts",
			Usage:       "Max attempts for food identification",
			Value:       3,
			Sources:     cli.EnvVars("FOODLENS_IDENTIFY_ATTEMPTS"),
			Destination: &cfg.identifyAttempts,
		},
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "Max tool-calling iterations per food resolution",
			Value:       5,
			Sources:     cli.EnvVars("FOODLENS_MAX_ITERATIONS"),
			Destination: &cfg.maxIterations,
		},
		&cli.FloatFlag{
			Name:        "accept-confidence",
			Usage:       "Minimum match confidence to accept a database record",
			Value:       0.85,
			Sources:     cli.EnvVars("FOODLENS_ACCEPT_CONFIDENCE"),
			Destination: &cfg.acceptConfidence,
		},
	}
}

// foodDataFlags returns flags for the nutrition database clients
func foodDataFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:        "usda-api-key",
			Usage:       "USDA FoodData Central API key (repeatable; rotated on rate limits)",
			Sources:     cli.EnvVars("USDA_API_KEYS", "USDA_API_KEY"),
			Destination: &cfg.usdaAPIKeys,
		},
		&cli.IntFlag{
			Name:        "max-concurrent-foods",
			Usage:       "Max foods resolved in parallel",
			Value:       5,
			Sources:     cli.EnvVars("FOODLENS_MAX_CONCURRENT_FOODS"),
			Destination: &cfg.maxConcurrentFoods,
		},
		&cli.DurationFlag{
			Name:        "food-timeout",
			Usage:       "Per-food resolution timeout",
			Value:       45 * time.Second,
			Sources:     cli.EnvVars("FOODLENS_FOOD_TIMEOUT"),
			Destination: &cfg.foodTimeout,
		},
		&cli.BoolFlag{
			Name:        "open-food-facts",
			Usage:       "Include Open Food Facts in barcode lookups",
			Value:       true,
			Sources:     cli.EnvVars("FOODLENS_OPEN_FOOD_FACTS"),
			Destination: &cfg.openFoodFacts,
		},
	}
}

// load merges the optional YAML file into unset values.
func (cfg *config) load() error {
	if cfg.configPath == "" {
		return nil
	}

	raw, err := os.ReadFile(cfg.configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to read config file", goerr.V("path", cfg.configPath))
	}

	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return goerr.Wrap(err, "failed to parse config file", goerr.V("path", cfg.configPath))
	}

	if len(cfg.geminiAPIKeys) == 0 {
		cfg.geminiAPIKeys = fc.GeminiAPIKeys
	}
	if len(cfg.usdaAPIKeys) == 0 {
		cfg.usdaAPIKeys = fc.USDAAPIKeys
	}
	if fc.GeminiModel != "" {
		cfg.geminiModel = fc.GeminiModel
	}
	if cfg.project == "" {
		cfg.project = fc.Project
	}
	if fc.Database != "" {
		cfg.database = fc.Database
	}

	return nil
}

// newRotator registers all configured API keys into one rotator.
func (cfg *config) newRotator() (*credential.Rotator, error) {
	if len(cfg.geminiAPIKeys) == 0 {
		return nil, goerr.New("gemini-api-key is required")
	}
	if len(cfg.usdaAPIKeys) == 0 {
		return nil, goerr.New("usda-api-key is required")
	}

	rotator := credential.New()
	rotator.Register(adapter.CapabilityGemini, cfg.geminiAPIKeys...)
	rotator.Register(fooddata.CapabilityUSDA, cfg.usdaAPIKeys...)
	return rotator, nil
}

// newGemini creates a rotation-aware Gemini adapter
func (cfg *config) newGemini(rotator *credential.Rotator) adapter.Gemini {
	return adapter.NewGemini(rotator, adapter.WithGenerativeModel(cfg.geminiModel))
}

// newFoodData creates the USDA search/detail client
func (cfg *config) newFoodData(rotator *credential.Rotator) *fooddata.USDAClient {
	return fooddata.NewUSDA(rotator)
}

// newProductLookup combines the configured barcode sources
func (cfg *config) newProductLookup(rotator *credential.Rotator) *fooddata.ProductLookup {
	sources := []fooddata.BarcodeSearcher{fooddata.NewUSDA(rotator)}
	if cfg.openFoodFacts {
		sources = append(sources, fooddata.NewOpenFoodFacts())
	}
	return fooddata.NewProductLookup(sources...)
}

// newRepository creates a Firestore repository when a project is
// configured, an in-memory one otherwise.
func (cfg *config) newRepository(ctx context.Context) (repository.Repository, error) {
	if cfg.project == "" {
		return repository.NewMemory(), nil
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newAnalyzer wires the full analysis use case.
func (cfg *config) newAnalyzer(ctx context.Context) (*analyze.UseCase, error) {
	if err := cfg.load(); err != nil {
		return nil, err
	}

	rotator, err := cfg.newRotator()
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository(ctx)
	if err != nil {
		return nil, err
	}

	gemini := cfg.newGemini(rotator)

	identifier := analyze.NewIdentifier(gemini,
		analyze.WithIdentifyAttempts(int(cfg.identifyAttempts)),
	)
	resolver := analyze.NewResolver(gemini, cfg.newFoodData(rotator),
		analyze.WithMaxIterations(int(cfg.maxIterations)),
		analyze.WithAcceptConfidence(cfg.acceptConfidence),
	)
	scheduler := analyze.NewScheduler(resolver,
		analyze.WithMaxConcurrent(int(cfg.maxConcurrentFoods)),
		analyze.WithPerFoodTimeout(cfg.foodTimeout),
	)

	opts := []analyze.Option{analyze.WithRepository(repo)}
	if !cfg.noBarcode {
		opts = append(opts, analyze.WithBarcodeLookup(barcode.NewDetector(), cfg.newProductLookup(rotator)))
	}

	return analyze.New(identifier, scheduler, adapter.NewImageSource(), opts...), nil
}
