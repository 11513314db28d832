package processor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"emlwatch/internal/config"
	"emlwatch/internal/fileutil"
	"emlwatch/internal/logging"
)

// Options configures a Processor.
type Options struct {
	TemplatePath          string
	RecordKey             string
	InputExtension        string
	OutputExtension       string
	TempExtension         string
	CompanionTimeout      time.Duration
	CompanionPollInterval time.Duration
}

// OptionsFromConfig derives processor options from application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		TemplatePath:          cfg.Processor.TemplatePath,
		RecordKey:             cfg.Processor.RecordKey,
		InputExtension:        cfg.Watch.InputExtension,
		OutputExtension:       cfg.Watch.OutputExtension,
		TempExtension:         cfg.Processor.TempExtension,
		CompanionTimeout:      cfg.CompanionTimeout(),
		CompanionPollInterval: cfg.CompanionPollInterval(),
	}
}

// Processor renders one record into its artifact.
type Processor struct {
	opts   Options
	logger *slog.Logger
}

// New constructs a processor.
func New(opts Options, logger *slog.Logger) *Processor {
	return &Processor{opts: opts, logger: logging.NewComponentLogger(logger, "processor")}
}

// ArtifactPath returns where the artifact for candidate is published.
func (p *Processor) ArtifactPath(candidate string) string {
	return p.stem(candidate) + p.opts.OutputExtension
}

func (p *Processor) stem(candidate string) string {
	return strings.TrimSuffix(candidate, p.opts.InputExtension)
}

// Process decodes the record at candidate, collects its companion message
// when one is named, renders the template and publishes the artifact. A
// missing or unparsable companion is logged and the artifact is rendered
// without it.
func (p *Processor) Process(ctx context.Context, candidate string) error {
	logger := logging.WithContext(ctx, p.logger)
	if _, ok := logging.CandidateFromContext(ctx); !ok {
		logger = logger.With(logging.String(logging.FieldCandidate, candidate))
	}
	logger.Info("processing record", logging.String(logging.FieldEventType, "record_started"))

	record, err := p.readRecord(candidate)
	if err != nil {
		return err
	}

	var msg *Message
	if record.Companion != "" {
		msg = p.loadCompanion(ctx, logger, filepath.Join(filepath.Dir(candidate), record.Companion))
	}

	if _, err := os.Stat(p.opts.TemplatePath); err != nil {
		return Wrap(ErrTemplate, "open template", p.opts.TemplatePath, err)
	}

	doc := NewDocument(filepath.Base(candidate), record, msg)
	artifact := p.ArtifactPath(candidate)
	tmpPath := p.stem(candidate) + p.opts.TempExtension
	err = fileutil.PublishAtomic(tmpPath, artifact, 0o644, func(w io.Writer) error {
		return Render(w, p.opts.TemplatePath, doc)
	})
	if err != nil {
		if Kind(err) == "template" {
			return err
		}
		return Wrap(ErrPublish, "publish artifact", artifact, err)
	}

	logger.Info("artifact published",
		logging.String("artifact", artifact),
		logging.Int("attachments", len(doc.Attachments)),
		logging.Bool("companion", msg != nil),
		logging.String(logging.FieldEventType, "artifact_published"),
	)
	return nil
}

func (p *Processor) readRecord(candidate string) (Record, error) {
	file, err := os.Open(candidate)
	if err != nil {
		return Record{}, Wrap(ErrRecord, "open record", candidate, err)
	}
	defer file.Close()
	record, err := DecodeRecord(file, p.opts.RecordKey)
	if err != nil {
		return Record{}, Wrap(ErrRecord, "decode record", candidate, err)
	}
	return record, nil
}

func (p *Processor) loadCompanion(ctx context.Context, logger *slog.Logger, path string) *Message {
	if !fileutil.Exists(path) {
		logger.Info("waiting for companion message",
			logging.String("companion", path),
			logging.Duration("timeout", p.opts.CompanionTimeout),
			logging.String(logging.FieldEventType, "companion_wait"),
		)
	}
	if !fileutil.WaitForFile(ctx, path, p.opts.CompanionTimeout, p.opts.CompanionPollInterval) {
		logging.WarnWithContext(logger, "companion message not found; rendering without it", "companion_missing",
			logging.String("companion", path),
			logging.Duration("timeout", p.opts.CompanionTimeout),
			logging.String(logging.FieldErrorHint, "deliver the .eml before or with the record, or raise companion_timeout"),
			logging.String(logging.FieldImpact, "artifact has no message body or attachment list"),
		)
		return nil
	}

	file, err := os.Open(path)
	if err != nil {
		logging.ErrorWithContext(logger, "companion message unreadable", "companion_unreadable",
			logging.String("companion", path),
			logging.Error(Wrap(ErrCompanion, "open companion", path, err)),
		)
		return nil
	}
	defer file.Close()

	msg, err := ParseMessage(file)
	if err != nil {
		logging.ErrorWithContext(logger, "companion message unparsable", "companion_unparsable",
			logging.String("companion", path),
			logging.Error(Wrap(ErrCompanion, "parse companion", path, err)),
		)
		return nil
	}
	return &msg
}
