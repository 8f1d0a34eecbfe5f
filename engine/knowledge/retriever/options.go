package retriever

import (
	"fmt"

	appconfig "github.com/gcpassist/gcpassist/pkg/config"
)

// Mode selects the search strategy.
type Mode string

const (
	ModeSimilarity Mode = "similarity"
	ModeMMR        Mode = "mmr"
)

const (
	defaultTopK      = 4
	defaultFetchK    = 20
	defaultMMRLambda = 0.5
	defaultNamespace = "gcp_guidelines"
)

// Options configures retrieval. Lambda is only read in ModeMMR.
type Options struct {
	Mode      Mode
	TopK      int
	FetchK    int
	Lambda    float64
	Namespace string
}

// OptionsFromApp maps the application retrieval settings onto Options.
func OptionsFromApp(cfg *appconfig.RetrievalConfig) Options {
	if cfg == nil {
		return Options{}.normalized()
	}
	return Options{
		Mode:      Mode(cfg.Mode),
		TopK:      cfg.TopK,
		FetchK:    cfg.FetchK,
		Lambda:    cfg.MMRLambda,
		Namespace: cfg.Namespace,
	}.normalized()
}

func (o Options) normalized() Options {
	if o.Mode == "" {
		o.Mode = ModeSimilarity
	}
	if o.TopK <= 0 {
		o.TopK = defaultTopK
	}
	if o.FetchK <= 0 {
		o.FetchK = defaultFetchK
	}
	if o.Mode == ModeMMR && o.Lambda == 0 {
		o.Lambda = defaultMMRLambda
	}
	if o.Namespace == "" {
		o.Namespace = defaultNamespace
	}
	return o
}

func (o Options) validate() error {
	switch o.Mode {
	case ModeSimilarity, ModeMMR:
	default:
		return fmt.Errorf("retriever: unknown mode %q", o.Mode)
	}
	if o.Lambda < 0 || o.Lambda > 1 {
		return fmt.Errorf("retriever: mmr lambda %v outside [0,1]", o.Lambda)
	}
	return nil
}
