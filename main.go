package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "whitepaper",
	Short: "Generate and export paginated whitepapers",
	Long: `Whitepaper studio generates whitepapers with an LLM, optionally grounded
on a Qdrant knowledge base, and exports them as PDF, DOCX or PPTX with
consistent pagination.

Run without a subcommand to start the HTTP server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

var (
	renderIn     string
	renderOut    string
	renderFormat string
	renderTitle  string
	renderImages []string
	renderCover  bool
	renderTOC    bool
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render a markup file offline",
	Long: `Render a markup (or PDF/DOCX/ODT) file to PDF, DOCX or PPTX without
calling an LLM.

Images are attached with --image page:path[:caption], for example
  whitepaper render --in body.md --format pdf --out out.pdf --image 2:chart.png:Adoption`,
	RunE: runRender,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load (default: ./.env when present)")

	renderCmd.Flags().StringVar(&renderIn, "in", "", "input file (.md, .txt, .pdf, .docx, .odt)")
	renderCmd.Flags().StringVar(&renderOut, "out", "", "output file (default: derived from the title)")
	renderCmd.Flags().StringVar(&renderFormat, "format", FormatPDF, "export format: pdf, docx or pptx")
	renderCmd.Flags().StringVar(&renderTitle, "title", "", "document title (default: first heading)")
	renderCmd.Flags().StringArrayVar(&renderImages, "image", nil, "image as page:path[:caption], repeatable")
	renderCmd.Flags().BoolVar(&renderCover, "cover", false, "add a cover page with generated art")
	renderCmd.Flags().BoolVar(&renderTOC, "toc", false, "add a table of contents")
	_ = renderCmd.MarkFlagRequired("in")

	rootCmd.AddCommand(serveCmd, renderCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	profiles, err := loadProfiles(cfg.LayoutProfilesFile)
	if err != nil {
		return err
	}
	provider, err := newProvider(ctx, cfg, log)
	if err != nil {
		return err
	}

	var kb KnowledgeBase
	if cfg.QdrantURL != "" {
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("QDRANT_URL is set but OPENAI_API_KEY (needed for embeddings) is not")
		}
		embedder := newOpenAIEmbedder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
		kb = newQdrantKnowledgeBase(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, embedder, log)
		log.Info("knowledge base enabled", "url", cfg.QdrantURL, "collection", cfg.QdrantCollection)
	}
	var imageGen ImageGenerator
	if cfg.OpenAIAPIKey != "" {
		imageGen = newOpenAIImageGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.ImageModel)
	}
	images := newImageResolver(imageGen)

	store, err := openStore(cfg.DatabaseDSN, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("database close", "error", err)
		}
	}()
	cache, err := newExportCache(cfg, log)
	if err != nil {
		return err
	}
	defer cache.Close()

	generator := NewGenerator(provider, kb, images, cfg.PDFFont, log)
	queue := newJobQueue(store, generator.Generate, cfg.QueueWorkers, cfg.QueueSize, log)
	queue.validate = generator.Validate
	queue.Start()

	srv := &Server{
		store:       store,
		queue:       queue,
		generate:    generator.Generate,
		exporter:    NewExporter(profiles, pdfFonts{Regular: cfg.PDFFont, Bold: cfg.PDFFontBold}),
		cache:       cache,
		images:      images,
		provider:    provider,
		fontPath:    cfg.PDFFont,
		syncTimeout: 10 * time.Minute,
		log:         log.With("component", "http"),
	}
	app := newApp(srv)

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "port", cfg.Port)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if stopErr := queue.Stop(stopCtx); stopErr != nil {
			log.Warn("job queue shutdown", "error", stopErr)
		}
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Warn("job queue shutdown", "error", err)
	}
	return nil
}

func newApp(srv *Server) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:         25 << 20,
		ReadTimeout:       10 * time.Minute,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       2 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		ProxyHeader:       "X-Forwarded-For",
		ServerHeader:      "Whitepaper-Studio",
		ReduceMemoryUsage: true,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New())

	srv.routes(app)
	return app
}

func runRender(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}
	profiles, err := loadProfiles(cfg.LayoutProfilesFile)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(renderIn)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	fileType := detectFileTypeFromName(renderIn)
	if fileType == "unknown" {
		fileType = detectFileType(data)
	}
	text, err := extractMarkup(data, fileType)
	if err != nil {
		return err
	}

	req := RenderRequest{Title: renderTitle, Text: text, IncludeCover: renderCover, IncludeTOC: renderTOC}
	for _, flag := range renderImages {
		spec, err := parseImageFlag(flag)
		if err != nil {
			return err
		}
		req.Images = append(req.Images, spec)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	paper, err := paperFromMarkup(ctx, newImageResolver(nil), req, cfg.PDFFont)
	if err != nil {
		return err
	}
	exporter := NewExporter(profiles, pdfFonts{Regular: cfg.PDFFont, Bold: cfg.PDFFontBold})
	out, _, err := exporter.Render(ctx, paper, renderFormat)
	if err != nil {
		return err
	}

	path := renderOut
	if path == "" {
		path = exportFileName(paper.Title, strings.ToLower(renderFormat))
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", path, len(out))
	return nil
}

// parseImageFlag reads "page:path[:caption]" and inlines the file.
func parseImageFlag(flag string) (ImageSpec, error) {
	parts := strings.SplitN(flag, ":", 3)
	if len(parts) < 2 || parts[1] == "" {
		return ImageSpec{}, fmt.Errorf("invalid --image %q (want page:path[:caption])", flag)
	}
	page, err := strconv.Atoi(parts[0])
	if err != nil {
		return ImageSpec{}, fmt.Errorf("invalid --image page %q: %w", parts[0], err)
	}
	raw, err := os.ReadFile(parts[1])
	if err != nil {
		return ImageSpec{}, fmt.Errorf("read image: %w", err)
	}
	spec := ImageSpec{Page: page, Data: base64.StdEncoding.EncodeToString(raw)}
	if len(parts) == 3 {
		spec.Caption = parts[2]
	}
	return spec, nil
}
