package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Versioned store
	RepoDir     string
	RemoteURL   string
	Branch      string
	BotName     string
	BotEmail    string
	RetryBound  int
	BackoffBase time.Duration

	// Hot shared document and append targets
	StatePath string
	MemoryDir string

	// Council. Panel size is the length of Personas.
	Quorum        int
	ReviewTimeout time.Duration
	Personas      []string

	// Lint Gate
	AllowedDirs  []string
	DeniedPaths  []string
	MaxFiles     int
	MaxTitleLen  int
	ScoreAxes    []string
	BranchPrefix string

	// External collaborators
	RedisURL    string
	DatabaseURL string

	// Reasoning service
	OpenAIKey   string
	OpenAIModel string
	MaxDiffSize int
}

func Load() Config {
	cfg := Config{
		RepoDir:     getenv("GITCLAW_REPO_DIR", "./data/repo"),
		RemoteURL:   getenv("GITCLAW_REMOTE_URL", ""),
		Branch:      getenv("GITCLAW_BRANCH", "main"),
		BotName:     getenv("GITCLAW_BOT_NAME", "GitClaw"),
		BotEmail:    getenv("GITCLAW_BOT_EMAIL", "bot@gitclaw.dev"),
		RetryBound:  getenvInt("GITCLAW_RETRY_BOUND", 5),
		BackoffBase: getenvDuration("GITCLAW_BACKOFF_BASE", 500*time.Millisecond),

		StatePath: getenv("GITCLAW_STATE_PATH", "memory/state.json"),
		MemoryDir: getenv("GITCLAW_MEMORY_DIR", "memory"),

		Quorum:        getenvInt("GITCLAW_QUORUM", 4),
		ReviewTimeout: getenvDuration("GITCLAW_REVIEW_TIMEOUT", 5*time.Minute),
		Personas: getenvList("GITCLAW_PERSONAS",
			"zuckerberg,wonderful,musk,toly,satoshi,cia,cobain"),

		AllowedDirs: getenvList("GITCLAW_ALLOWED_DIRS",
			"agents,templates/prompts,config,memory"),
		DeniedPaths: getenvList("GITCLAW_DENIED_PATHS",
			"scripts,.github/workflows"),
		MaxFiles:    getenvInt("GITCLAW_MAX_FILES", 3),
		MaxTitleLen: getenvInt("GITCLAW_MAX_TITLE_LEN", 60),
		ScoreAxes: getenvList("GITCLAW_SCORE_AXES",
			"performance,security,maintainability,developer_experience,cost_efficiency"),
		BranchPrefix: getenv("GITCLAW_BRANCH_PREFIX", "feat/"),

		RedisURL:    getenv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: getenv("DATABASE_URL", ""),

		OpenAIKey:   getenv("OPENAI_API_KEY", ""),
		OpenAIModel: getenv("OPENAI_MODEL", "gpt-4o-mini"),
		MaxDiffSize: getenvInt("GITCLAW_MAX_DIFF_SIZE", 3000),
	}
	// A quorum outside 1..len(personas) can never be reached; fall back
	// to a simple majority.
	if cfg.Quorum < 1 || cfg.Quorum > len(cfg.Personas) {
		cfg.Quorum = len(cfg.Personas)/2 + 1
	}
	return cfg
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvList(key, fallback string) []string {
	value := os.Getenv(key)
	if value == "" {
		value = fallback
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
