package config

import "time"

type OpenAI struct {
	Token          string        `json:"token,omitempty" koanf:"token"`
	BaseURL        string        `json:"base_url,omitempty" koanf:"base_url"`
	OrgID          string        `json:"org_id,omitempty" koanf:"org_id"`
	IsAzure        bool          `json:"is_azure,omitempty" koanf:"is_azure"`
	RequestTimeout time.Duration `json:"request_timeout,omitempty" koanf:"request_timeout"`
}

// Assistant is the fixed configuration every tenant's assistant is created with.
type Assistant struct {
	Name         string `json:"name,omitempty" koanf:"name"`
	Instructions string `json:"instructions,omitempty" koanf:"instructions"`
	Model        string `json:"model,omitempty" koanf:"model"`
}

type Poll struct {
	Interval    time.Duration `json:"interval,omitempty" koanf:"interval"`
	MaxAttempts int           `json:"max_attempts,omitempty" koanf:"max_attempts"`
	Timeout     time.Duration `json:"timeout,omitempty" koanf:"timeout"`
}

// Secret selects where the API key comes from: "secretsmanager" or "static"
// (OpenAI.Token).
type Secret struct {
	Source string `json:"source,omitempty" koanf:"source"`
	Name   string `json:"name,omitempty" koanf:"name"`
	Region string `json:"region,omitempty" koanf:"region"`
}

type Postgres struct {
	Host     string `json:"host,omitempty" koanf:"host"`
	Port     string `json:"port,omitempty" koanf:"port"`
	DB       string `json:"db,omitempty" koanf:"db"`
	Username string `json:"username,omitempty" koanf:"username"`
	Password string `json:"password,omitempty" koanf:"password"`
	SSLMode  string `json:"ssl_mode,omitempty" koanf:"ssl_mode"`
}

type Redis struct {
	Address  string        `json:"address,omitempty" koanf:"address"`
	Password string        `json:"password,omitempty" koanf:"password"`
	DB       int           `json:"db,omitempty" koanf:"db"`
	TTL      time.Duration `json:"ttl,omitempty" koanf:"ttl"`
}

// Store selects the assistant store driver: "memory" or "postgres".
type Store struct {
	Driver string `json:"driver,omitempty" koanf:"driver"`
}

type HttpServer struct {
	Address string `json:"address,omitempty" koanf:"address"`
}

type CORS struct {
	AllowOrigins []string `json:"allow_origins,omitempty" koanf:"allow_origins"`
	MaxAge       int      `json:"max_age,omitempty" koanf:"max_age"`
}

type ConciergeConfig struct {
	OpenAI    OpenAI     `json:"openai,omitempty" koanf:"openai"`
	Assistant Assistant  `json:"assistant,omitempty" koanf:"assistant"`
	Poll      Poll       `json:"poll,omitempty" koanf:"poll"`
	Secret    Secret     `json:"secret,omitempty" koanf:"secret"`
	Store     Store      `json:"store,omitempty" koanf:"store"`
	Postgres  Postgres   `json:"postgres,omitempty" koanf:"postgres"`
	Redis     Redis      `json:"redis,omitempty" koanf:"redis"`
	Http      HttpServer `json:"http,omitempty" koanf:"http"`
	CORS      CORS       `json:"cors,omitempty" koanf:"cors"`
}

const (
	SecretSourceSecretsManager = "secretsmanager"
	SecretSourceStatic         = "static"

	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

func Default() ConciergeConfig {
	return ConciergeConfig{
		OpenAI: OpenAI{
			RequestTimeout: 30 * time.Second,
		},
		Assistant: Assistant{
			Name:         "SaaS Concierge",
			Instructions: "You are a helpful AI assistant for a SaaS application.",
			Model:        "gpt-4-1106-preview",
		},
		Poll: Poll{
			Interval: time.Second,
			Timeout:  2 * time.Minute,
		},
		Secret: Secret{
			Source: SecretSourceSecretsManager,
			Name:   "OpenAI_API_Key",
			Region: "us-east-2",
		},
		Store: Store{
			Driver: StoreDriverMemory,
		},
		Redis: Redis{
			TTL: time.Hour,
		},
		Http: HttpServer{
			Address: ":8080",
		},
		CORS: CORS{
			AllowOrigins: []string{"*"},
			MaxAge:       300,
		},
	}
}
