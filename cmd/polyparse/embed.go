package main

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dusk-indust/polyparse/internal/embedding"
	"github.com/dusk-indust/polyparse/internal/graph"
)

var embedCmd = &cobra.Command{
	Use:   "embed <file>",
	Short: "Embed the components of a file with an embedding service",
	Long: `Parse a file and send the text of every component below the file level
to an embedding service, printing one JSON object per component:

  {"id": "...", "name": "...", "kind": "FUNCTION", "vector": [...]}

The service URL comes from --embedding-url, embedding.url in polyparse.yml
or POLYPARSE_EMBEDDING_URL. A bearer token is read from embedding.token.`,
	Args: cobra.ExactArgs(1),
	RunE: runEmbed,
}

func init() {
	addParseFlags(embedCmd)
	f := embedCmd.Flags()
	f.String("embedding-url", "", "embedding service base URL")
	f.String("model", "", "model name passed to the service")
}

type embeddedComponent struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Kind   graph.ComponentKind `json:"kind"`
	Vector []float32           `json:"vector"`
}

func runEmbed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := embedding.New(embedding.Config{
		URL:   cfg.Embedding.URL,
		Model: cfg.Embedding.Model,
		Token: cfg.Embedding.Token,
	}, embedding.WithLogger(logrus.WithField("component", "embedding")))
	if err != nil {
		return err
	}

	coord, reg := newCoordinator(cfg)
	defer closeRegistry(reg)

	ctx := cmd.Context()
	res, err := coord.ParseDocument(ctx, args[0], nil, cfg.ParseOptions())
	if err != nil {
		return err
	}

	var comps []graph.Component
	var texts []string
	for _, c := range res.Components {
		if c.Kind == graph.KindFile {
			continue
		}
		comps = append(comps, c)
		texts = append(texts, componentText(c))
	}
	if len(comps) == 0 {
		logrus.WithField("file", args[0]).Info("no components to embed")
		return nil
	}

	vectors, err := client.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	for i, c := range comps {
		if err := enc.Encode(embeddedComponent{ID: c.ID, Name: c.Name, Kind: c.Kind, Vector: vectors[i]}); err != nil {
			return err
		}
	}
	return nil
}

// componentText is the source of c, or its kind and qualified name when
// the backend kept no code.
func componentText(c graph.Component) string {
	if c.Code != "" {
		return c.Code
	}
	return fmt.Sprintf("%s %s", c.Kind, c.QualifiedName())
}
