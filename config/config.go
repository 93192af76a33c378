// Package config 加载并校验实验配置（YAML/JSON），
// 并把松散的模型超参节编译为可执行的训练配置。
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zhuotongchen/crowd-coachable-recommendations/core"
	"github.com/zhuotongchen/crowd-coachable-recommendations/model"
	"github.com/zhuotongchen/crowd-coachable-recommendations/pkg/conv"
	"github.com/zhuotongchen/crowd-coachable-recommendations/pkg/dsl"
	"github.com/zhuotongchen/crowd-coachable-recommendations/tokenize"
	"github.com/zhuotongchen/crowd-coachable-recommendations/train"
)

// Config 是实验配置结构（支持 YAML/JSON）。
type Config struct {
	Experiment struct {
		Name      string          `yaml:"name" json:"name"`
		LogDir    string          `yaml:"log_dir" json:"log_dir"`
		Tokenizer TokenizerConfig `yaml:"tokenizer" json:"tokenizer"`
		Training  TrainingConfig  `yaml:"training" json:"training"`
		// Model 是松散的超参节：variant / alpha / beta / embed_dim /
		// n_negatives / valid_n_negatives / lr / weight_decay / replacement /
		// sample_with_prior / sample_with_posterior / prior_fcn / seed
		Model map[string]any `yaml:"model" json:"model"`
	} `yaml:"experiment" json:"experiment"`
}

// TokenizerConfig 选择分词器实现。
type TokenizerConfig struct {
	Kind      string `yaml:"kind" json:"kind"` // hashing / pretrained
	Buckets   int    `yaml:"buckets" json:"buckets"`
	VocabFile string `yaml:"vocab_file" json:"vocab_file"`
	MaxLength int    `yaml:"max_length" json:"max_length"`
}

// TrainingConfig 是训练循环的配置节。
type TrainingConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	MaxEpochs int `yaml:"max_epochs" json:"max_epochs"`
	MaxSteps  int `yaml:"max_steps" json:"max_steps"`
	Workers   int `yaml:"workers" json:"workers"`
}

// LoadFromYAML 从 YAML 文件加载实验配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// LoadFromJSON 从 JSON 文件加载实验配置。
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &cfg, nil
}

// Validate 校验配置：模型变体必须已注册，alpha 必须在 [0, 1]。
// 未注册的变体返回包含已支持列表的错误。
func (c *Config) Validate() error {
	variant := conv.ConfigGet(c.Experiment.Model, "variant", "vae")
	supported := model.SupportedVariants()
	found := false
	for _, s := range supported {
		if s == variant {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("config: unsupported model variant %q (supported: %v)", variant, supported)
	}

	if alpha, ok := conv.ToFloat64(c.Experiment.Model["alpha"]); ok {
		if alpha < 0 || alpha > 1 {
			return core.NewDomainError(core.ModuleTrain, core.ErrorCodeInvalidInput,
				fmt.Sprintf("config: alpha %v outside [0, 1]", alpha))
		}
	}
	return nil
}

// Hyperparams 把松散的模型节解析为超参束；prior_fcn 表达式经 DSL 编译。
func (c *Config) Hyperparams() (model.Hyperparams, error) {
	m := c.Experiment.Model
	hp := model.Hyperparams{
		Variant:         conv.ConfigGet(m, "variant", "vae"),
		NNegatives:      getInt(m, "n_negatives", 4),
		ValidNNegatives: getInt(m, "valid_n_negatives", 0),
		EmbedDim:        getInt(m, "embed_dim", 32),
		Alpha:           getFloat(m, "alpha", 0.5),
		Beta:            getFloat(m, "beta", 0),
		LR:              getFloat(m, "lr", 0.01),
		WeightDecay:     getFloat(m, "weight_decay", 0),
		Replacement:     conv.ConfigGet(m, "replacement", false),
		SampleWithPrior: conv.ConfigGet(m, "sample_with_prior", false),
		Seed:            conv.ConfigGetInt64(m, "seed", 0),
	}
	hp.SampleWithPosterior = getFloat(m, "sample_with_posterior", 0)

	if expr := conv.ConfigGet(m, "prior_fcn", ""); expr != "" {
		fcn, err := dsl.CompilePrior(expr)
		if err != nil {
			return model.Hyperparams{}, err
		}
		hp.PriorFcn = fcn
	}
	return hp, nil
}

// BuildTokenizer 按配置构建分词器。未知类型报错并列出支持的类型。
func (c *Config) BuildTokenizer() (core.Tokenizer, error) {
	tc := c.Experiment.Tokenizer
	switch tc.Kind {
	case "", "hashing":
		return tokenize.NewHashing(tc.Buckets), nil
	case "pretrained":
		if tc.VocabFile == "" {
			return nil, fmt.Errorf("config: pretrained tokenizer requires vocab_file")
		}
		return tokenize.NewPretrainedFromFile(tc.VocabFile)
	default:
		return nil, fmt.Errorf("config: unknown tokenizer kind %q (supported: [hashing pretrained])", tc.Kind)
	}
}

// BuildOrchestratorConfig 把配置组装为编排器配置。
func (c *Config) BuildOrchestratorConfig() (train.OrchestratorConfig, error) {
	if err := c.Validate(); err != nil {
		return train.OrchestratorConfig{}, err
	}
	hp, err := c.Hyperparams()
	if err != nil {
		return train.OrchestratorConfig{}, err
	}
	tok, err := c.BuildTokenizer()
	if err != nil {
		return train.OrchestratorConfig{}, err
	}

	return train.OrchestratorConfig{
		Tokenizer:  tok,
		MaxLength:  c.Experiment.Tokenizer.MaxLength,
		BatchSize:  c.Experiment.Training.BatchSize,
		MaxEpochs:  c.Experiment.Training.MaxEpochs,
		MaxSteps:   c.Experiment.Training.MaxSteps,
		Workers:    c.Experiment.Training.Workers,
		LogDir:     c.Experiment.LogDir,
		Experiment: c.Experiment.Name,
		HP:         hp,
	}, nil
}

// getFloat 从配置节取 float64，兼容 YAML/JSON 解析出的各种数值类型。
func getFloat(m map[string]any, key string, def float64) float64 {
	if v, ok := conv.ToFloat64(m[key]); ok {
		return v
	}
	return def
}

// getInt 从配置节取 int，兼容 YAML/JSON 解析出的各种数值类型。
func getInt(m map[string]any, key string, def int) int {
	if v, ok := conv.ToInt(m[key]); ok {
		return v
	}
	return def
}
