package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/redpanda-data/benthos/v4/public/service"

	"github.com/twinfer/binread-plugin/pkg/binread"
	"github.com/twinfer/binread-plugin/pkg/decode"
)

const (
	metaErrorKind = "binread_error_kind"
	metaErrorPos  = "binread_error_pos"
)

// BinreadProcessor is a Benthos processor that decodes binary messages into
// structured messages using a binread YAML schema.
type BinreadProcessor struct {
	config       BinreadConfig
	decoder      *decode.Decoder
	logger       *service.Logger
	tracer       binread.Tracer
	mDecoded     *service.MetricCounter
	mErrors      *service.MetricCounter
	mCacheHits   *service.MetricCounter
	mCacheMisses *service.MetricCounter
}

// BinreadConfig contains configuration parameters for the binread processor.
type BinreadConfig struct {
	SchemaPath string `json:"schema_path" yaml:"schema_path"`
	RootType   string `json:"root_type" yaml:"root_type"`
	Trace      bool   `json:"trace" yaml:"trace"`
}

// binreadProcessorConfig returns a config spec for a binread processor.
func binreadProcessorConfig() *service.ConfigSpec {
	return service.NewConfigSpec().
		Summary("Decodes binary data into structured messages using a declarative binread schema.").
		Description("This processor reads each message's bytes with a YAML schema describing structs, enums, magic values, pointers and padding, and replaces the message with the decoded structure. Failed reads keep the original message, flag it with the error and add the error kind and stream position as metadata.").
		Field(service.NewStringField("schema_path").
			Description("Path to the binread YAML schema file.").
			Example("./schemas/my_format.yaml")).
		Field(service.NewStringField("root_type").
			Description("The type to decode. Leave empty to use the schema's root type.").
			Default("")).
		Field(service.NewBoolField("trace").
			Description("Log every struct and variant entered and left at debug level.").
			Default(false).
			Advanced()).
		Version("0.1.0")
}

// newBinreadProcessorFromConfig creates a new BinreadProcessor from a parsed config.
func newBinreadProcessorFromConfig(conf *service.ParsedConfig, mgr *service.Resources) (*BinreadProcessor, error) {
	schemaPath, err := conf.FieldString("schema_path")
	if err != nil {
		return nil, err
	}

	rootType, err := conf.FieldString("root_type")
	if err != nil {
		return nil, err
	}

	trace, err := conf.FieldBool("trace")
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(schemaPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("schema file not found at path: %s", schemaPath)
	}

	logger := mgr.Logger()
	metrics := mgr.Metrics()

	p := &BinreadProcessor{
		config: BinreadConfig{
			SchemaPath: schemaPath,
			RootType:   rootType,
			Trace:      trace,
		},
		logger:       logger,
		mDecoded:     metrics.NewCounter("binread_decoded_messages"),
		mErrors:      metrics.NewCounter("binread_decode_errors"),
		mCacheHits:   metrics.NewCounter("binread_schema_cache_hits"),
		mCacheMisses: metrics.NewCounter("binread_schema_cache_misses"),
	}

	slogger := slog.New(newLogHandler(logger))
	if trace {
		p.tracer = binread.NewSlogTracer(slogger)
	}
	p.decoder = decode.NewDecoder(
		decode.WithLogger(slogger),
		decode.WithCaching(0),
		decode.WithCacheHook(p.recordCacheLookup),
	)

	// Compile once up front so schema errors fail the pipeline at startup.
	if err := p.decoder.ValidateSchema(schemaPath); err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", schemaPath, err)
	}
	return p, nil
}

func (p *BinreadProcessor) recordCacheLookup(path string, hit bool) {
	if hit {
		p.logger.Tracef("Schema cache hit for path: %s", path)
		p.mCacheHits.Incr(1)
		return
	}
	p.logger.Debugf("Loading schema from path: %s", path)
	p.mCacheMisses.Incr(1)
}

// Process decodes one message.
func (p *BinreadProcessor) Process(ctx context.Context, msg *service.Message) (service.MessageBatch, error) {
	binData, err := msg.AsBytes()
	if err != nil {
		p.logger.Errorf("Failed to get binary data from message: %v", err)
		p.mErrors.Incr(1)
		msg.SetError(fmt.Errorf("failed to get binary data from message: %w", err))
		return service.MessageBatch{msg}, nil
	}
	if len(binData) == 0 {
		p.mErrors.Incr(1)
		msg.SetError(errors.New("empty message"))
		return service.MessageBatch{msg}, nil
	}

	opts := []decode.Option{decode.WithRootType(p.config.RootType)}
	if p.tracer != nil {
		opts = append(opts, decode.WithTracer(p.tracer))
	}

	result, err := p.decoder.Decode(ctx, binData, p.config.SchemaPath, opts...)
	if err != nil {
		p.logger.Errorf("Failed to decode binary data of size %d bytes: %v", len(binData), err)
		p.mErrors.Incr(1)

		var berr *binread.Error
		if errors.As(err, &berr) {
			msg.MetaSetMut(metaErrorKind, berr.Kind.String())
			msg.MetaSetMut(metaErrorPos, strconv.FormatInt(berr.Pos, 10))
		}
		msg.SetError(fmt.Errorf("failed to decode binary data of size %d bytes: %w", len(binData), err))
		return service.MessageBatch{msg}, nil
	}

	p.logger.Debugf("Successfully decoded %d bytes of binary data", len(binData))
	p.mDecoded.Incr(1)

	newMsg := msg.Copy()
	newMsg.SetStructuredMut(result)
	return service.MessageBatch{newMsg}, nil
}

// Close releases the compiled schema.
func (p *BinreadProcessor) Close(ctx context.Context) error {
	p.logger.Debug("Closing binread processor and clearing schema cache")
	p.decoder.ClearCache()
	return nil
}
