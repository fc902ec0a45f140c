package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/medsage-ai/medsage/internal/errors"
)

// imageSlot is the identifier the llama.cpp server expects inside the
// prompt for the first attached image.
const imageSlot = 10

// ServerConfig configures the supervised llama.cpp server process.
type ServerConfig struct {
	// Binary is the llama-server executable.
	Binary string

	// Host/Port the server binds to. Loopback only; the process is a
	// private engine, not a network service.
	Host string
	Port int

	// StartupTimeout bounds how long to wait for the model to load.
	StartupTimeout time.Duration
}

// DefaultServerConfig returns conservative defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Binary:         "llama-server",
		Host:           "127.0.0.1",
		Port:           8765,
		StartupTimeout: 2 * time.Minute,
	}
}

// LlamaRuntime implements Runtime by supervising a local llama.cpp
// server process and speaking its HTTP completion API.
type LlamaRuntime struct {
	cfg ServerConfig
	log zerolog.Logger
}

// NewLlamaRuntime creates the production runtime.
func NewLlamaRuntime(cfg ServerConfig, log zerolog.Logger) *LlamaRuntime {
	if cfg.Binary == "" {
		cfg = DefaultServerConfig()
	}
	return &LlamaRuntime{
		cfg: cfg,
		log: log.With().Str("component", "llamacpp").Logger(),
	}
}

// NewContext starts the server with the main model loaded and waits
// for it to report healthy.
func (r *LlamaRuntime) NewContext(ctx context.Context, params ContextParams) (Context, error) {
	lc := &llamaContext{
		cfg:    r.cfg,
		params: params,
		log:    r.log,
		client: &http.Client{},
		base:   fmt.Sprintf("http://%s:%d", r.cfg.Host, r.cfg.Port),
	}

	if err := lc.start(ctx, "", true); err != nil {
		return nil, err
	}
	return lc, nil
}

// llamaContext is a live handle to one server process.
type llamaContext struct {
	cfg    ServerConfig
	params ContextParams
	log    zerolog.Logger
	client *http.Client
	base   string

	cmd      *exec.Cmd
	projPath string
	released bool
}

// start (re)launches the server process. An empty projectorPath loads
// the text-only model; accelerated controls GPU offload.
func (lc *llamaContext) start(ctx context.Context, projectorPath string, accelerated bool) error {
	lc.stop()

	gpuLayers := lc.params.GPULayers
	if !accelerated {
		gpuLayers = 0
	}

	args := []string{
		"-m", lc.params.ModelPath,
		"-c", strconv.Itoa(lc.params.ContextSize),
		"-t", strconv.Itoa(lc.params.Threads),
		"-ngl", strconv.Itoa(gpuLayers),
		"--host", lc.cfg.Host,
		"--port", strconv.Itoa(lc.cfg.Port),
	}
	if projectorPath != "" {
		args = append(args, "--mmproj", projectorPath)
		if !accelerated {
			args = append(args, "--no-mmproj-offload")
		}
	}

	lc.log.Info().Str("binary", lc.cfg.Binary).Strs("args", args).Msg("starting engine process")

	cmd := exec.Command(lc.cfg.Binary, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, errors.CodeEngineUnavailable, "failed to start engine process", errors.CategorySystem)
	}
	lc.cmd = cmd
	lc.projPath = projectorPath

	if err := lc.waitHealthy(ctx); err != nil {
		lc.stop()
		return err
	}
	return nil
}

// waitHealthy polls the server health endpoint until the model is
// loaded or the startup timeout elapses.
func (lc *llamaContext) waitHealthy(ctx context.Context) error {
	deadline := time.Now().Add(lc.cfg.StartupTimeout)
	for {
		if time.Now().After(deadline) {
			return errors.Temporary(errors.CodeEngineUnavailable,
				fmt.Sprintf("engine did not become healthy within %v", lc.cfg.StartupTimeout))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, lc.base+"/health", nil)
		if err != nil {
			return errors.Wrap(err, errors.CodeEngineUnavailable, "failed to build health request", errors.CategoryPermanent)
		}
		resp, err := lc.client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), errors.CodeEngineUnavailable, "engine startup canceled", errors.CategoryTemporary)
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// AttachProjector restarts the process with the multimodal projector
// loaded. The restart is how this engine binds projection weights; the
// handle stays valid either way.
func (lc *llamaContext) AttachProjector(ctx context.Context, projectorPath string, accelerated bool) error {
	if err := lc.start(ctx, projectorPath, accelerated); err != nil {
		return errors.Wrap(err, errors.CodeEngineInitFailed,
			"multimodal projector attachment failed", errors.CategorySystem)
	}
	return nil
}

type completionRequest struct {
	Prompt      string      `json:"prompt"`
	NPredict    int         `json:"n_predict"`
	Temperature float64     `json:"temperature"`
	TopP        float64     `json:"top_p"`
	TopK        int         `json:"top_k"`
	Stop        []string    `json:"stop,omitempty"`
	Stream      bool        `json:"stream"`
	ImageData   []imageData `json:"image_data,omitempty"`
}

type imageData struct {
	Data string `json:"data"`
	ID   int    `json:"id"`
}

type completionResponse struct {
	Content string `json:"content"`
}

// Complete runs one non-streaming completion. When an image is
// attached the prompt's image marker is rewritten to the server's
// slot syntax and the image bytes travel base64-encoded in the body.
func (lc *llamaContext) Complete(ctx context.Context, params CompletionParams) (Completion, error) {
	if lc.cmd == nil || lc.released {
		return Completion{}, errors.User(errors.CodeEngineNotReady, "engine context released")
	}

	body := completionRequest{
		Prompt:      params.Prompt,
		NPredict:    params.Sampling.MaxTokens,
		Temperature: params.Sampling.Temperature,
		TopP:        params.Sampling.TopP,
		TopK:        params.Sampling.TopK,
		Stop:        params.Stop,
		Stream:      false,
	}

	if params.ImagePath != "" {
		data, err := os.ReadFile(params.ImagePath)
		if err != nil {
			return Completion{}, errors.Wrap(err, errors.CodeFileNotFound,
				fmt.Sprintf("failed to read image %s", params.ImagePath), errors.CategoryPermanent)
		}
		body.ImageData = []imageData{{Data: base64.StdEncoding.EncodeToString(data), ID: imageSlot}}
		body.Prompt = strings.Replace(body.Prompt, "<image>", fmt.Sprintf("[img-%d]", imageSlot), 1)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return Completion{}, errors.Wrap(err, errors.CodeInferenceFailed, "failed to encode completion request", errors.CategoryPermanent)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lc.base+"/completion", bytes.NewReader(payload))
	if err != nil {
		return Completion{}, errors.Wrap(err, errors.CodeInferenceFailed, "failed to build completion request", errors.CategoryPermanent)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lc.client.Do(req)
	if err != nil {
		return Completion{}, errors.Wrap(err, errors.CodeInferenceFailed, "completion request failed", errors.CategoryTemporary)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Completion{}, errors.Wrap(err, errors.CodeInferenceFailed, "failed to read completion response", errors.CategoryTemporary)
	}

	if resp.StatusCode != http.StatusOK {
		return Completion{}, errors.Temporary(errors.CodeInferenceFailed,
			fmt.Sprintf("engine returned %s: %s", resp.Status, string(raw)))
	}

	var cr completionResponse
	if err := json.Unmarshal(raw, &cr); err != nil {
		return Completion{}, errors.NewBuilder(errors.CodeInferenceFailed, "failed to decode completion response").
			Permanent().
			Wrap(err).
			WithContext("response_body", string(raw)).
			Build()
	}

	return Completion{Text: cr.Content}, nil
}

// Release stops the server process. Safe to call repeatedly.
func (lc *llamaContext) Release() error {
	lc.released = true
	lc.stop()
	return nil
}

// stop terminates the process if one is running.
func (lc *llamaContext) stop() {
	if lc.cmd == nil || lc.cmd.Process == nil {
		return
	}
	if err := lc.cmd.Process.Kill(); err == nil {
		lc.cmd.Wait()
	}
	lc.cmd = nil
}
