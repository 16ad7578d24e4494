package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/thebrunchguy/sms-controller/airtable"
	"github.com/thebrunchguy/sms-controller/intent"
	"github.com/thebrunchguy/sms-controller/llm"
	"github.com/thebrunchguy/sms-controller/people"
	"github.com/thebrunchguy/sms-controller/pipeline"
	"github.com/thebrunchguy/sms-controller/providers/openai"
	"github.com/thebrunchguy/sms-controller/router"
)

// storeFromViper builds the record store named by store.backend. The
// returned closer is a no-op for remote backends.
func storeFromViper(ctx context.Context) (people.Store, func() error, error) {
	backend := strings.ToLower(strings.TrimSpace(viper.GetString("store.backend")))
	switch backend {
	case "", "file":
		fs := people.NewFileStore(viper.GetString("store.path"))
		if err := fs.Ensure(ctx); err != nil {
			return nil, nil, fmt.Errorf("init file store: %w", err)
		}
		return fs, fs.Close, nil
	case "airtable":
		apiKey := strings.TrimSpace(viper.GetString("airtable.api_key"))
		baseID := strings.TrimSpace(viper.GetString("airtable.base_id"))
		if apiKey == "" || baseID == "" {
			return nil, nil, fmt.Errorf("missing airtable.api_key or airtable.base_id (set via config or %s_AIRTABLE_API_KEY)", envPrefix)
		}
		client := airtable.New(nil, apiKey, baseID, airtable.Options{
			BaseURL: viper.GetString("airtable.base_url"),
			Tables: airtable.Tables{
				People:    viper.GetString("airtable.tables.people"),
				Checkins:  viper.GetString("airtable.tables.checkins"),
				Messages:  viper.GetString("airtable.tables.messages"),
				Reminders: viper.GetString("airtable.tables.reminders"),
				Notes:     viper.GetString("airtable.tables.notes"),
				Followups: viper.GetString("airtable.tables.followups"),
			},
		})
		return client, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store.backend: %s", backend)
	}
}

// llmClientFromViper returns nil when no API key is configured; every
// consumer degrades to its keyword fallback in that case.
func llmClientFromViper() llm.Client {
	apiKey := strings.TrimSpace(viper.GetString("llm.api_key"))
	if apiKey == "" {
		return nil
	}
	return openai.New(viper.GetString("llm.endpoint"), apiKey)
}

func pipelineFromViper(store people.Store, logger *slog.Logger) *pipeline.Pipeline {
	client := llmClientFromViper()
	model := viper.GetString("llm.model")

	var classifier intent.Classifier
	var resolver people.Resolver = people.SubstringResolver{}
	if client != nil {
		classifier = intent.NewRemoteClassifier(client, model, logger)
		llmResolver := people.NewLLMResolver(client, model, logger)
		llmResolver.MinConfidence = viper.GetFloat64("resolver.min_confidence")
		resolver = llmResolver
	} else {
		classifier = &intent.KeywordClassifier{}
	}

	rt := router.New(router.Deps{
		People:    store,
		Reminders: store,
		Notes:     store,
		Followups: store,
		Checkins:  store,
		Resolver:  resolver,
		Logger:    logger,
	})

	return pipeline.New(pipeline.Config{
		Admins:        viper.GetStringSlice("admin.numbers"),
		Classifier:    classifier,
		Router:        rt,
		Legacy:        intent.NewLegacyExtractor(client, model, logger),
		People:        store,
		MinConfidence: viper.GetFloat64("pipeline.min_confidence"),
		Logger:        logger,
	})
}

func reminderBufferFromViper() time.Duration {
	d := viper.GetDuration("jobs.reminder_buffer")
	if d <= 0 {
		d = 5 * time.Minute
	}
	return d
}
