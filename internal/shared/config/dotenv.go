package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// loadEnvFiles loads KEY=VALUE pairs from the given files if they exist.
// Variables already present in the environment win. Errors are ignored.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}

// fileConfig mirrors the keys of the legacy settings file. Env holds arbitrary
// overrides keyed by env var name.
type fileConfig struct {
	RootPath       string            `yaml:"root_path"`
	OpenAIAPIKey   string            `yaml:"openai_api_key"`
	GeminiAPIKey   string            `yaml:"gemini_api_key"`
	CSVPath        string            `yaml:"csv_path"`
	OpenAIModel    string            `yaml:"openai_model"`
	LLMProvider    string            `yaml:"llm_provider"`
	CompanyName    string            `yaml:"company_name"`
	EditorUser     string            `yaml:"editor_user"`
	EditorPassword string            `yaml:"editor_password"`
	Env            map[string]string `yaml:"env"`
}

// loadYAMLFile applies values from a YAML file as env defaults.
func loadYAMLFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	csvPath := fc.CSVPath
	if csvPath != "" && fc.RootPath != "" && !strings.HasPrefix(csvPath, "/") {
		csvPath = strings.TrimRight(fc.RootPath, "/") + "/" + csvPath
	}
	setDefault("OPENAI_API_KEY", fc.OpenAIAPIKey)
	setDefault("GEMINI_API_KEY", fc.GeminiAPIKey)
	setDefault("CSV_PATH", csvPath)
	setDefault("LLM_MODEL", fc.OpenAIModel)
	setDefault("LLM_PROVIDER", fc.LLMProvider)
	setDefault("COMPANY_NAME", fc.CompanyName)
	setDefault("EDITOR_USER", fc.EditorUser)
	setDefault("EDITOR_PASSWORD", fc.EditorPassword)
	for k, v := range fc.Env {
		setDefault(strings.ToUpper(strings.TrimSpace(k)), v)
	}
	return nil
}

func setDefault(key, val string) {
	if key == "" || strings.TrimSpace(val) == "" {
		return
	}
	if _, ok := os.LookupEnv(key); ok {
		return
	}
	_ = os.Setenv(key, val)
}
