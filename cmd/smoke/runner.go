package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentChecks bounds the sweep so it does not exhaust the token pool
// of the deployment under test.
const maxConcurrentChecks = 4

// run orchestrates the smoke sweep across the configured targets and checks.
func run(ctx context.Context, logger glog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	specs := buildCheckSpecs(cfg)
	if len(specs) == 0 {
		return errors.New("nothing to check: no models configured")
	}
	targets := sweepTargets(specs)

	logger.Info("starting gateway smoke sweep",
		zap.String("base_url", cfg.APIBase),
		zap.Int("target_count", len(targets)),
		zap.Int("check_count", len(specs)),
	)

	httpClient := &http.Client{}
	resultsCh := make(chan checkResult, len(specs))

	var (
		results   []checkResult
		collectWg sync.WaitGroup
	)
	collectWg.Add(1)
	go func() {
		defer collectWg.Done()
		for res := range resultsCh {
			results = append(results, res)
			if res.Success {
				logger.Info("check passed",
					zap.String("target", res.Target),
					zap.String("check", res.Label),
					zap.Duration("duration", res.Duration),
					zap.Int("status", res.StatusCode),
				)
				continue
			}
			logger.Warn("check failed",
				zap.String("target", res.Target),
				zap.String("check", res.Label),
				zap.Duration("duration", res.Duration),
				zap.Int("status", res.StatusCode),
				zap.String("error", res.ErrorReason),
				zap.String("response_body", res.ResponseBody),
			)
		}
	}()

	grp, grpCtx := errgroup.WithContext(ctx)
	grp.SetLimit(maxConcurrentChecks)
	for _, spec := range specs {
		s := spec
		grp.Go(func() error {
			checkCtx, cancel := context.WithTimeout(grpCtx, checkTimeout(s.Kind))
			defer cancel()

			res := performCheck(checkCtx, httpClient, cfg, s)
			select {
			case resultsCh <- res:
			case <-grpCtx.Done():
			}
			return nil
		})
	}

	_ = grp.Wait()
	close(resultsCh)
	collectWg.Wait()

	rep := buildReport(targets, cfg.Variants, results)
	renderReport(rep)

	if rep.failedCount > 0 {
		return errors.Errorf("%d of %d checks failed", rep.failedCount, rep.totalChecks)
	}

	return nil
}

// buildCheckSpecs binds every selected variant to its sweep targets.
func buildCheckSpecs(cfg harnessConfig) []checkSpec {
	allModels := make([]string, 0, len(cfg.ChatModels)+len(cfg.ImageModels)+len(cfg.VideoModels))
	allModels = append(allModels, cfg.ChatModels...)
	allModels = append(allModels, cfg.ImageModels...)
	allModels = append(allModels, cfg.VideoModels...)

	var specs []checkSpec
	for _, variant := range cfg.Variants {
		for _, target := range cfg.modelsFor(variant.Kind) {
			spec := checkSpec{
				Variant: variant.Key,
				Label:   variant.Header,
				Kind:    variant.Kind,
				Method:  variant.Method,
				Path:    variant.Path,
				Stream:  variant.Stream,
				Target:  target,
			}
			switch variant.Kind {
			case kindChat:
				spec.Body = chatPayload(target, variant.Stream)
			case kindImage:
				spec.Body = imagePayload(target)
			case kindVideo:
				spec.Body = videoPayload(target)
			default:
				if variant.Key == "models_list" {
					spec.ExpectModels = allModels
				}
			}
			specs = append(specs, spec)
		}
	}

	return specs
}

// sweepTargets returns the distinct result columns in first-seen order.
func sweepTargets(specs []checkSpec) []string {
	var targets []string
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if !seen[spec.Target] {
			targets = append(targets, spec.Target)
			seen[spec.Target] = true
		}
	}
	return targets
}

// checkTimeout allots generation checks enough room for slow renders while
// keeping gateway probes snappy.
func checkTimeout(kind checkKind) time.Duration {
	switch kind {
	case kindVideo:
		return 10 * time.Minute
	case kindImage:
		return 3 * time.Minute
	case kindChat:
		return 2 * time.Minute
	default:
		return 15 * time.Second
	}
}
