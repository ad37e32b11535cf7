package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"gopkg.in/yaml.v3"

	tonerules "github.com/zhouzirui/z-tone/backend/internal/analysis/tone"
	"github.com/zhouzirui/z-tone/backend/internal/embedding"
	model "github.com/zhouzirui/z-tone/backend/internal/model/tone"
	"github.com/zhouzirui/z-tone/backend/internal/rpc"
	tonesvc "github.com/zhouzirui/z-tone/backend/internal/service/tone"
	"github.com/zhouzirui/z-tone/backend/internal/store/memory"
)

// seedEntry is one labelled example in a seed file.
type seedEntry struct {
	Text         string  `yaml:"text"`
	Tone         string  `yaml:"tone"`
	Confidence   float64 `yaml:"confidence"`
	Relationship string  `yaml:"relationship"`
	UserID       string  `yaml:"userId"`
}

func main() {
	// .env 可选
	_ = godotenv.Load()

	var (
		paramsFile   string
		seedFile     string
		userID       string
		relationship string
		dimension    int64
		server       string
		grpcAddr     string
		phone        string
		name         string
		timeout      time.Duration
	)

	paramsFlag := &cli.StringFlag{
		Name:        "params",
		Usage:       "YAML file overriding the default tone parameters",
		Sources:     cli.EnvVars("TONE_PARAMS_FILE"),
		Destination: &paramsFile,
	}
	timeoutFlag := &cli.DurationFlag{
		Name:        "timeout",
		Usage:       "Request timeout",
		Value:       30 * time.Second,
		Destination: &timeout,
	}

	cmd := &cli.Command{
		Name:  "tonetester",
		Usage: "Inspect tone analysis offline or against a running server",
		Commands: []*cli.Command{
			{
				Name:      "features",
				Usage:     "Print extracted features and the rule-based classification",
				ArgsUsage: "<text>",
				Flags:     []cli.Flag{paramsFlag},
				Action: func(ctx context.Context, c *cli.Command) error {
					text, err := textArg(c)
					if err != nil {
						return err
					}
					params, err := loadParams(paramsFile)
					if err != nil {
						return err
					}
					rule := params.ClassifyByRules(text, "")
					return printJSON(map[string]any{
						"features":       params.ExtractFeatures(text),
						"ruleTone":       rule.Tone,
						"ruleConfidence": rule.Confidence,
						"ruleScores":     rule.Scores,
						"relationship":   tonerules.DetectRelationship(text),
					})
				},
			},
			{
				Name:      "analyze",
				Usage:     "Run the full analyzer with the hash embedder and an in-memory store",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					paramsFlag,
					&cli.StringFlag{
						Name:        "seed",
						Usage:       "YAML file with labelled examples to load before analysis",
						Destination: &seedFile,
					},
					&cli.StringFlag{
						Name:        "user",
						Aliases:     []string{"u"},
						Usage:       "User ID attached to the request",
						Value:       "tonetester",
						Destination: &userID,
					},
					&cli.StringFlag{
						Name:        "relationship",
						Aliases:     []string{"r"},
						Usage:       "Relationship hint, e.g. colleague or partner",
						Destination: &relationship,
					},
					&cli.IntFlag{
						Name:        "dimension",
						Aliases:     []string{"d"},
						Usage:       "Hash embedding dimension",
						Value:       embedding.HashDimension,
						Sources:     cli.EnvVars("EMBEDDING_DIMENSION"),
						Destination: &dimension,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					text, err := textArg(c)
					if err != nil {
						return err
					}
					params, err := loadParams(paramsFile)
					if err != nil {
						return err
					}

					st := memory.New()
					client := embedding.NewClient(embedding.NewHashEmbedder(int(dimension)), embedding.HashModel, int(dimension), 0)
					analyzer := tonesvc.NewAnalyzer(
						tonesvc.AnalysisContext{Store: st, Embedder: client},
						tonesvc.Options{Params: &params},
					)

					if seedFile != "" {
						n, err := seed(ctx, analyzer.Recorder(), seedFile, userID)
						if err != nil {
							return err
						}
						fmt.Fprintf(os.Stderr, "seeded %d examples\n", n)
					}

					analysis := analyzer.Analyze(ctx, tonesvc.Request{
						UserID:      userID,
						Text:        text,
						ContextHint: relationship,
					})
					return printJSON(analysis)
				},
			},
			{
				Name:      "send",
				Usage:     "POST a message to a running server and print the reply",
				ArgsUsage: "<text>",
				Flags: []cli.Flag{
					timeoutFlag,
					&cli.StringFlag{
						Name:        "server",
						Aliases:     []string{"s"},
						Usage:       "HTTP base URL of the server",
						Value:       "http://localhost:8080",
						Sources:     cli.EnvVars("ZTONE_SERVER"),
						Destination: &server,
					},
					&cli.StringFlag{
						Name:        "phone",
						Usage:       "Sender phone number",
						Value:       "+15550100",
						Destination: &phone,
					},
					&cli.StringFlag{
						Name:        "name",
						Usage:       "Sender display name",
						Destination: &name,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					text, err := textArg(c)
					if err != nil {
						return err
					}
					ctx, cancel := context.WithTimeout(ctx, timeout)
					defer cancel()
					return sendHTTP(ctx, server, map[string]string{
						"senderPhone": phone,
						"senderName":  name,
						"messageText": text,
					})
				},
			},
			{
				Name:  "health",
				Usage: "Query the gRPC health endpoint of a running server",
				Flags: []cli.Flag{
					timeoutFlag,
					&cli.StringFlag{
						Name:        "grpc",
						Usage:       "gRPC address of the server",
						Value:       "localhost:9090",
						Sources:     cli.EnvVars("ZTONE_GRPC_ADDR"),
						Destination: &grpcAddr,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
					if err != nil {
						return goerr.Wrap(err, "failed to create gRPC client", goerr.V("addr", grpcAddr))
					}
					defer conn.Close()

					ctx, cancel := context.WithTimeout(ctx, timeout)
					defer cancel()
					resp, err := rpc.NewClient(conn).HealthCheck(ctx)
					if err != nil {
						return goerr.Wrap(err, "health check failed", goerr.V("addr", grpcAddr))
					}
					return printJSON(resp.Report)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func textArg(c *cli.Command) (string, error) {
	if c.Args().Len() == 0 {
		return "", goerr.New("message text is required")
	}
	return c.Args().First(), nil
}

func loadParams(path string) (tonerules.Params, error) {
	if path == "" {
		return tonerules.DefaultParams(), nil
	}
	return tonerules.LoadParamsFile(path)
}

// seed records every entry of the YAML file at path. Entries without a user
// belong to defaultUser.
func seed(ctx context.Context, recorder *tonesvc.Recorder, path, defaultUser string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read seed file", goerr.V("path", path))
	}
	var entries []seedEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return 0, goerr.Wrap(err, "failed to parse seed file", goerr.V("path", path))
	}

	for i, e := range entries {
		t, ok := model.Parse(e.Tone)
		if !ok {
			return i, goerr.New("unknown tone in seed file", goerr.V("index", i), goerr.V("tone", e.Tone))
		}
		confidence := e.Confidence
		if confidence == 0 {
			confidence = 0.9
		}
		owner := e.UserID
		if owner == "" {
			owner = defaultUser
		}
		if _, err := recorder.RecordObservation(ctx, tonesvc.Observation{
			UserID:       owner,
			Text:         e.Text,
			Tone:         t,
			Confidence:   confidence,
			Relationship: e.Relationship,
		}); err != nil {
			return i, goerr.Wrap(err, "failed to record seed example", goerr.V("index", i))
		}
	}
	return len(entries), nil
}

func sendHTTP(ctx context.Context, server string, body map[string]string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/api/messages", bytes.NewReader(payload))
	if err != nil {
		return goerr.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "request failed", goerr.V("server", server))
	}
	defer resp.Body.Close()

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return goerr.Wrap(err, "failed to decode response", goerr.V("status", resp.StatusCode))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return goerr.New("server returned an error", goerr.V("status", resp.StatusCode), goerr.V("body", out))
	}
	return printJSON(out)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
