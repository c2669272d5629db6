package simgrp

import (
	"time"

	"github.com/ardanlabs/powsim/foundation/blockchain/state"
)

// StartRequest is the body of a start call. Durations are in milliseconds.
// Zero values take the service defaults.
type StartRequest struct {
	Miners             int     `json:"miners" validate:"required,gte=1,lte=64"`
	HashRate           float64 `json:"hash_rate" validate:"gte=0,lte=1000000"`
	Difficulty         uint    `json:"difficulty" validate:"lte=8"`
	Data               string  `json:"data" validate:"max=256"`
	NetworkDelayMS     int64   `json:"network_delay_ms" validate:"gte=0"`
	NetworkJitterMS    int64   `json:"network_jitter_ms" validate:"gte=0"`
	TargetBlockTimeMS  int64   `json:"target_block_time_ms" validate:"gte=0"`
	SampleCount        int     `json:"sample_count" validate:"gte=0,lte=100"`
	StillnessTimeoutMS int64   `json:"stillness_timeout_ms" validate:"gte=0"`
	PruneDepth         uint64  `json:"prune_depth"`
}

// toConfig layers the request over the service defaults.
func (req StartRequest) toConfig(defaults state.Config) state.Config {
	cfg := defaults
	cfg.Miners = req.Miners

	if req.HashRate > 0 {
		cfg.HashRate = req.HashRate
	}
	if req.Difficulty > 0 {
		cfg.Difficulty = req.Difficulty
	}
	if req.Data != "" {
		cfg.Data = req.Data
	}
	if req.NetworkDelayMS > 0 {
		cfg.NetworkDelay = ms(req.NetworkDelayMS)
	}
	if req.NetworkJitterMS > 0 {
		cfg.NetworkJitter = ms(req.NetworkJitterMS)
	}
	if req.TargetBlockTimeMS > 0 {
		cfg.TargetBlockTime = ms(req.TargetBlockTimeMS)
	}
	if req.SampleCount > 0 {
		cfg.SampleCount = req.SampleCount
	}
	if req.StillnessTimeoutMS > 0 {
		cfg.StillnessTimeout = ms(req.StillnessTimeoutMS)
	}
	if req.PruneDepth > 0 {
		cfg.PruneDepth = req.PruneDepth
	}

	return cfg
}

func ms(v int64) time.Duration {
	return time.Duration(v) * time.Millisecond
}

// DataRequest is the body of a submit data call.
type DataRequest struct {
	Data string `json:"data" validate:"required,max=256"`
}

// RateRequest is the body of a set miner rate call.
type RateRequest struct {
	Rate *float64 `json:"rate" validate:"required,gte=0,lte=1000000"`
}
