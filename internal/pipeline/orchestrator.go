package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/tbbo-ingest/internal/batch"
	"github.com/dgnsrekt/tbbo-ingest/internal/checkpoint"
	"github.com/dgnsrekt/tbbo-ingest/internal/dbn"
	"github.com/dgnsrekt/tbbo-ingest/internal/model"
	"github.com/dgnsrekt/tbbo-ingest/internal/sink"
)

// Orchestrator ingests source files one at a time. Within a file, decoding
// runs ahead of the sink by at most InFlight batches, and a checkpoint is
// saved after every committed batch.
type Orchestrator struct {
	opts    Options
	builder *batch.Builder
	store   checkpoint.Store
	writer  sink.Writer
	logger  *zap.Logger
}

func New(opts Options, store checkpoint.Store, writer sink.Writer, logger *zap.Logger) (*Orchestrator, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	b, err := batch.New(opts.ChunkSize, opts.MaxBytes)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{
		opts:    opts,
		builder: b,
		store:   store,
		writer:  writer,
		logger:  logger,
	}, nil
}

// RunID identifies this orchestrator's checkpoints.
func (o *Orchestrator) RunID() string {
	return o.opts.RunID
}

// Run processes files in order and updates their State and Cursor in place.
// A failed file does not stop the run. Cancellation stops before the next
// batch; the current file stays in progress and later files stay pending.
// The returned error is non-nil only when the run was cancelled.
func (o *Orchestrator) Run(ctx context.Context, files []model.SourceFile) (*Result, error) {
	start := time.Now()
	res := &Result{RunID: o.opts.RunID, Total: len(files)}
	o.opts.Tracker.StartRun(o.opts.RunID, files)

	o.logger.Info("starting ingest run",
		zap.String("run_id", o.opts.RunID),
		zap.Int("files", len(files)),
		zap.Int("chunk_size", o.opts.ChunkSize),
		zap.Int("in_flight", o.opts.InFlight))

	for i := range files {
		if ctx.Err() != nil {
			for _, f := range files[i:] {
				res.add(FileResult{ID: f.ID, State: model.StatePending, Offset: f.Cursor})
			}
			break
		}
		res.add(o.runFile(ctx, &files[i]))
	}

	res.Duration = time.Since(start)
	o.logger.Info("ingest run finished",
		zap.String("run_id", res.RunID),
		zap.Int("complete", res.Complete),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int("interrupted", res.Interrupted),
		zap.Int("pending", res.Pending),
		zap.Int("batches", res.Batches),
		zap.Int("records", res.Records),
		zap.Duration("duration", res.Duration))

	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) runFile(ctx context.Context, f *model.SourceFile) FileResult {
	log := o.logger.With(zap.String("file", f.ID))
	fr := FileResult{ID: f.ID}

	cp, err := o.store.Load(ctx, f.ID)
	if err != nil {
		return o.fail(ctx, f, &fr, nil, fmt.Errorf("loading checkpoint: %w", err))
	}
	if cp.Complete() {
		f.State = model.StateComplete
		f.Cursor = cp.Offset
		fr.State = model.StateComplete
		fr.Skipped = true
		fr.Offset = cp.Offset
		o.opts.Tracker.Finish(f.ID, model.StateComplete, cp.Offset, nil)
		log.Info("file already complete, skipping", zap.Uint64("offset", cp.Offset))
		return fr
	}

	prog := &model.Checkpoint{FileID: f.ID, State: model.StateInProgress, RunID: o.opts.RunID}
	if cp != nil {
		prog.Offset = cp.Offset
		prog.LastTsEvent = cp.LastTsEvent
		prog.Batches = cp.Batches
		prog.Records = cp.Records
		log.Info("resuming file", zap.Uint64("offset", cp.Offset), zap.String("previous_state", string(cp.State)))
	} else {
		log.Info("starting file", zap.Int64("size", f.Size))
	}

	f.State = model.StateInProgress
	f.Cursor = prog.Offset
	fr.Offset = prog.Offset
	if err := o.save(ctx, prog); err != nil {
		return o.fail(ctx, f, &fr, prog, err)
	}
	o.opts.Tracker.Begin(f.ID, prog.Offset)

	fh, err := os.Open(f.Path)
	if err != nil {
		return o.fail(ctx, f, &fr, prog, fmt.Errorf("opening source: %w", err))
	}
	defer fh.Close()

	dec, err := dbn.Open(fh, prog.Offset, dbn.WithSkipHandler(func(rs *dbn.RecordSkipped) {
		log.Warn("record skipped",
			zap.Uint64("offset", rs.Offset),
			zap.Uint8("rtype", rs.RType),
			zap.Int("length", rs.Length),
			zap.String("reason", rs.Reason))
	}))
	if err != nil {
		return o.fail(ctx, f, &fr, prog, err)
	}
	defer dec.Close()
	f.Symbols = dec.Metadata().Symbols

	prodErr, consErr := o.stream(ctx, f, &fr, prog, dec, log)

	stats := dec.Stats()
	fields := []zap.Field{
		zap.Int64("records", stats.Records),
		zap.Int64("malformed", stats.Malformed),
		zap.Int64("out_of_order", stats.OutOfOrder),
		zap.Int64("crossed", stats.Crossed),
	}
	for rtype, n := range stats.Skipped {
		fields = append(fields, zap.Int64(fmt.Sprintf("skipped_rtype_0x%02x", rtype), n))
	}
	if stats.OutOfOrder > 0 {
		log.Warn("decoder stats", fields...)
	} else {
		log.Debug("decoder stats", fields...)
	}

	switch {
	case consErr != nil:
		if o.interrupted(ctx, consErr) {
			return o.interrupt(f, &fr, prog, log)
		}
		return o.fail(ctx, f, &fr, prog, consErr)
	case prodErr != nil:
		if o.interrupted(ctx, prodErr) {
			return o.interrupt(f, &fr, prog, log)
		}
		return o.fail(ctx, f, &fr, prog, prodErr)
	}

	prog.Offset = dec.Offset()
	prog.State = model.StateComplete
	prog.Error = ""
	if err := o.save(ctx, prog); err != nil {
		return o.fail(ctx, f, &fr, prog, err)
	}

	f.State = model.StateComplete
	f.Cursor = prog.Offset
	fr.State = model.StateComplete
	fr.Offset = prog.Offset
	o.opts.Tracker.Finish(f.ID, model.StateComplete, prog.Offset, nil)
	log.Info("file complete",
		zap.Uint64("offset", prog.Offset),
		zap.Int("batches", fr.Batches),
		zap.Int("records", fr.Records))
	return fr
}

// stream runs the builder and the sink loop concurrently. At most InFlight
// batches exist between the decoder and the last checkpoint, counting the
// one being committed and the one the builder holds.
func (o *Orchestrator) stream(ctx context.Context, f *model.SourceFile, fr *FileResult, prog *model.Checkpoint, src batch.Source, log *zap.Logger) (prodErr, consErr error) {
	prodCtx, cancelProd := context.WithCancel(ctx)
	defer cancelProd()

	// The consumer holds the batch being committed and the builder holds the
	// next one, so the queue only buffers batches beyond two. With a single
	// batch in flight the builder also waits for each commit to finish.
	queue := make(chan *model.Batch, max(o.opts.InFlight-2, 0))
	var acks chan struct{}
	if o.opts.InFlight == 1 {
		acks = make(chan struct{}, 1)
	}

	var g errgroup.Group
	g.Go(func() error {
		defer close(queue)
		_, prodErr = o.builder.Run(prodCtx, f.ID, src, func(ctx context.Context, b *model.Batch) error {
			select {
			case queue <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
			if acks == nil {
				return nil
			}
			select {
			case <-acks:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		return nil
	})
	g.Go(func() error {
		defer cancelProd()
		consErr = o.commit(ctx, f, fr, prog, queue, acks, log)
		return nil
	})
	_ = g.Wait()

	return prodErr, consErr
}

// commit writes each batch and then advances the checkpoint to its end.
// When acks is non-nil it is signalled after every checkpointed batch.
func (o *Orchestrator) commit(ctx context.Context, f *model.SourceFile, fr *FileResult, prog *model.Checkpoint, queue <-chan *model.Batch, acks chan<- struct{}, log *zap.Logger) error {
	for b := range queue {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := o.writer.Write(ctx, b); err != nil {
			return fmt.Errorf("batch %d: %w", b.Seq, err)
		}

		prog.Offset = b.EndOffset
		prog.Batches++
		prog.Records += int64(b.Len())
		if b.Len() > 0 {
			prog.LastTsEvent = b.LastTsEvent
		}
		if err := o.save(ctx, prog); err != nil {
			return fmt.Errorf("batch %d committed: %w", b.Seq, err)
		}

		f.Cursor = b.EndOffset
		fr.Offset = b.EndOffset
		fr.Batches++
		fr.Records += b.Len()
		o.opts.Tracker.Update(f.ID, b.EndOffset, b.Len())

		log.Debug("batch committed",
			zap.Int("seq", b.Seq),
			zap.Int("rows", b.Len()),
			zap.Uint64("start_offset", b.StartOffset),
			zap.Uint64("end_offset", b.EndOffset))

		if acks != nil {
			acks <- struct{}{}
		}
	}
	return nil
}

// save persists prog even while shutting down, so a committed batch is never
// left without its checkpoint because of cancellation.
func (o *Orchestrator) save(ctx context.Context, prog *model.Checkpoint) error {
	prog.UpdatedAt = time.Now().UTC()
	if err := o.store.Save(context.WithoutCancel(ctx), *prog); err != nil {
		return fmt.Errorf("saving checkpoint: %w", err)
	}
	return nil
}

func (o *Orchestrator) interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil && errors.Is(err, context.Canceled)
}

func (o *Orchestrator) interrupt(f *model.SourceFile, fr *FileResult, prog *model.Checkpoint, log *zap.Logger) FileResult {
	f.State = model.StateInProgress
	fr.State = model.StateInProgress
	fr.Offset = prog.Offset
	o.opts.Tracker.Finish(f.ID, model.StateInProgress, prog.Offset, nil)
	log.Warn("file interrupted", zap.Uint64("offset", prog.Offset), zap.Int("batches", fr.Batches))
	return *fr
}

// fail marks the file failed at its last committed offset. prog is nil when
// nothing is known about the file's progress.
func (o *Orchestrator) fail(ctx context.Context, f *model.SourceFile, fr *FileResult, prog *model.Checkpoint, cause error) FileResult {
	f.State = model.StateFailed
	fr.State = model.StateFailed
	fr.Err = cause

	if prog != nil {
		fr.Offset = prog.Offset
		prog.State = model.StateFailed
		prog.Error = cause.Error()
		if err := o.save(ctx, prog); err != nil {
			o.logger.Error("could not record failure", zap.String("file", f.ID), zap.Error(err))
		}
	}

	o.opts.Tracker.Finish(f.ID, model.StateFailed, fr.Offset, cause)
	o.logger.Error("file failed",
		zap.String("file", f.ID),
		zap.Uint64("offset", fr.Offset),
		zap.Int("batches", fr.Batches),
		zap.Error(cause))
	return *fr
}
