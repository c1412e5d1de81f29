// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParallel_TransformsAllItems(t *testing.T) {
	ctx := context.Background()
	source := make(chan int)
	go func() {
		defer close(source)
		for i := 0; i < 10; i++ {
			source <- i
		}
	}()

	out, errs := Parallel(ctx, source, func(_ context.Context, i int) (int, error) {
		return i * 2, nil
	}, 4)

	seen := make(map[int]bool)
	for r := range out {
		seen[r] = true
	}
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	default:
	}

	for i := 0; i < 10; i++ {
		if !seen[i*2] {
			t.Fatalf("missing result %d", i*2)
		}
	}
}

func TestParallel_SurfacesTransformError(t *testing.T) {
	ctx := context.Background()
	source := make(chan int, 1)
	source <- 1
	close(source)

	boom := errors.New("boom")
	_, errs := Parallel(ctx, source, func(_ context.Context, i int) (int, error) {
		return 0, boom
	}, 2)

	err := <-errs
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestBatch_EmitsOnMaxSize(t *testing.T) {
	ctx := context.Background()
	source := make(chan int)
	go func() {
		defer close(source)
		for i := 0; i < 5; i++ {
			source <- i
		}
	}()

	out := Batch(ctx, source, BatchOptions{MaxSize: 2, TimeoutMs: 5000})

	var batches [][]int
	for b := range out {
		batches = append(batches, b)
	}

	total := 0
	for _, b := range batches {
		if len(b) == 0 {
			t.Fatal("emitted empty batch")
		}
		total += len(b)
	}
	if total != 5 {
		t.Fatalf("expected 5 items total, got %d", total)
	}
}

func TestBatch_FlushesOnTimeout(t *testing.T) {
	ctx := context.Background()
	source := make(chan int)

	out := Batch(ctx, source, BatchOptions{MaxSize: 100, TimeoutMs: 20})

	source <- 1
	select {
	case b := <-out:
		if len(b) != 1 {
			t.Fatalf("expected single-item batch, got %v", b)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for timeout-triggered flush")
	}
	close(source)
}

func TestAdaptiveParallel_TransformsAllItems(t *testing.T) {
	ctx := context.Background()
	source := make(chan int)
	go func() {
		defer close(source)
		for i := 0; i < 20; i++ {
			source <- i
		}
	}()

	out, errs := AdaptiveParallel(ctx, source, func(_ context.Context, i int) (int, error) {
		return i, nil
	}, AdaptiveOptions{InitialConcurrency: 4, Min: 1, Max: 8, MonitoringInterval: time.Hour})

	count := 0
	for range out {
		count++
	}
	select {
	case err := <-errs:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	default:
	}

	if count != 20 {
		t.Fatalf("expected 20 results, got %d", count)
	}
}
