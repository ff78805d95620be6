package commands

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/moyedx3/figure-scrapper/internal/catalog"
	"github.com/moyedx3/figure-scrapper/internal/extractor"
	"github.com/moyedx3/figure-scrapper/internal/pipeline"
	"github.com/moyedx3/figure-scrapper/internal/productstore"
	"github.com/moyedx3/figure-scrapper/internal/productstore/db"
	"github.com/moyedx3/figure-scrapper/lib/configutil"
	configsqlite "github.com/moyedx3/figure-scrapper/lib/configutil/sqlite"
)

type LLMConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
}

type Config struct {
	Database configsqlite.Struct `json:"database"`
	// Catalogs limits scraping to the named shops; empty means all of them.
	Catalogs            []string  `json:"catalogs"`
	MaxPages            int       `json:"max_pages"`
	RequestDelayMs      int       `json:"request_delay_ms"`
	HTTPTimeoutMs       int       `json:"http_timeout_ms"`
	ExtractionThreshold float64   `json:"extraction_threshold"`
	WatchSchedule       string    `json:"watch_schedule"`
	EventQueueSize      int       `json:"event_queue_size"`
	LLM                 LLMConfig `json:"llm"`
}

func readConfig() Config {
	config, err := configutil.ReadRecursively[Config]("scraper.json5")
	if err != nil {
		fatal("failed to read scraper.json5", err)
	}
	return config
}

func (c Config) openDB() *sql.DB {
	database, err := c.Database.OpenDB(db.Schema)
	if err != nil {
		fatal("failed to open product database", err)
	}
	return database
}

func (c Config) catalogs() []catalog.Catalog {
	all := catalog.Defaults()
	if len(c.Catalogs) == 0 {
		return all
	}
	var selected []catalog.Catalog
	for _, name := range c.Catalogs {
		cat, ok := catalog.ByName(name)
		if !ok {
			fatal("bad config", fmt.Errorf("unknown catalog %q", name))
		}
		selected = append(selected, cat)
	}
	return selected
}

func (c Config) classifier() extractor.Classifier {
	if !c.LLM.Enabled {
		return nil
	}
	return extractor.NewMessagesClassifier(extractor.MessagesClassifierOptions{
		Endpoint: c.LLM.Endpoint,
		APIKey:   c.LLM.APIKey,
		Model:    c.LLM.Model,
	})
}

func (c Config) fetcherFactory() func(catalog.Catalog) pipeline.Fetcher {
	delay := time.Duration(c.RequestDelayMs) * time.Millisecond
	timeout := time.Duration(c.HTTPTimeoutMs) * time.Millisecond
	return func(catalog.Catalog) pipeline.Fetcher {
		return pipeline.NewRestyFetcher(pipeline.FetcherOptions{
			MinDelay: delay,
			Timeout:  timeout,
		})
	}
}

func (c Config) pipeline(store productstore.Store, sink pipeline.EventSink) pipeline.Pipeline {
	return pipeline.New(store, pipeline.Options{
		Catalogs:   c.catalogs(),
		NewFetcher: c.fetcherFactory(),
		Classifier: c.classifier(),
		Sink:       sink,
		MaxPages:   c.MaxPages,
		Threshold:  c.ExtractionThreshold,
	})
}
