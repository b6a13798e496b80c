// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/configforge/services/forge/telemetry"
)

// tracerName identifies pipeline spans and metrics.
const tracerName = "configforge/pipeline"

var (
	stageMetricsOnce sync.Once
	stageCounter     metric.Int64Counter
)

// stageSpan opens a child span for one pipeline stage.
func stageSpan(ctx context.Context, stage string) trace.Span {
	_, span := telemetry.StartSpan(ctx, tracerName, "pipeline."+stage)
	return span
}

// endStage closes a stage span and counts its outcome.
//
// A fatal stage error is recorded on the span; per-item failures mark
// the stage outcome as "error" without failing the span.
func endStage(ctx context.Context, span trace.Span, stage string, failures int, err error) {
	if err != nil {
		telemetry.RecordError(span, err)
		failures++
	} else if failures == 0 {
		telemetry.SetSpanOK(span)
	}
	span.End()
	recordStage(ctx, stage, failures)
}

// recordStage increments the stage-outcome counter on the global meter.
func recordStage(ctx context.Context, stage string, failures int) {
	stageMetricsOnce.Do(func() {
		var err error
		stageCounter, err = otel.Meter(tracerName).Int64Counter(
			"forge.pipeline.stage.outcomes",
			metric.WithDescription("Pipeline stage completions by outcome"),
		)
		if err != nil {
			slog.Warn("recordStage: counter creation failed", "error", err)
		}
	})
	if stageCounter == nil {
		return
	}

	outcome := "ok"
	if failures > 0 {
		outcome = "error"
	}
	stageCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}
