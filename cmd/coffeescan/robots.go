package main

import (
	"context"
	"net/http"

	"github.com/brewradar/coffeescan/internal/fetcher"
	"github.com/brewradar/coffeescan/internal/model"
	"github.com/brewradar/coffeescan/internal/orchestrator"
)

// robotsChecker adapts fetcher.CheckRobots to the orchestrator.RobotsChecker
// interface, writing the allow/crawl-delay decision back onto the shared
// roaster registry. The fetch guards are configured once at startup and
// do not read the registry's CrawlDelay, so a cached Crawl-Delay does not
// change the politeness wait.
type robotsChecker struct {
	client    *http.Client
	cfg       fetcher.ClientConfig
	userAgent string
	registry  *orchestrator.RoasterRegistry
}

func newRobotsChecker(client *http.Client, cfg fetcher.ClientConfig, userAgent string, registry *orchestrator.RoasterRegistry) *robotsChecker {
	return &robotsChecker{client: client, cfg: cfg, userAgent: userAgent, registry: registry}
}

func (r *robotsChecker) Allowed(ctx context.Context, roaster model.Roaster) (bool, error) {
	result, err := fetcher.CheckRobots(ctx, r.client, r.cfg, roaster.Hostname, r.userAgent)
	if err != nil {
		return false, err
	}
	roaster.RobotsAllowed = result.Allowed
	roaster.CrawlDelay = result.CrawlDelay
	r.registry.Upsert(roaster)
	return result.Allowed, nil
}
