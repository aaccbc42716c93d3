package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"

	"serax/internal/diag"
	"serax/internal/jsonx"
	"serax/pkg/contract"
	"serax/pkg/serax"
)

// - 单点并发：仅此层管理并发与背压；组件均为同步实现。
// - 顺序门闩：同一 FileID 的批按 BatchIndex 严格递增提交；乱序结果暂存，连续冲刷。
// - 首错取消：任一阶段出错即 cancel 整体；排空在途批次后返回该错误。
// - 畸形行不是错误：体现在记录判定与 Summary 中。

// Components 聚合运行所需的原子组件。
type Components struct {
	Reader    contract.Reader
	Splitter  contract.Splitter
	Batcher   contract.Batcher
	Decoder   contract.Decoder
	Assembler contract.Assembler
	Writer    contract.Writer
}

// Settings 运行期配置。
type Settings struct {
	Inputs      []string
	Concurrency int
	// BatchLimit 透传给 Batcher；零值使用 Batcher 自身默认。
	BatchLimit contract.BatchLimit
	// Metrics 为空时使用进程级 diag.Default()。
	Metrics *diag.Metrics
}

// sidecarRow: JSONL 边车的一行。
type sidecarRow struct {
	FileID contract.FileID `json:"file_id"`
	Index  contract.Index  `json:"index"`
	serax.Record
}

type runner struct {
	comp    Components
	set     Settings
	log     *diag.Logger
	metrics *diag.Metrics
	pool    *ants.Pool
	cancel  context.CancelFunc
}

// Run 执行完整流水线：Reader → Splitter → Batcher → Decoder(并发) → Assembler → Writer。
// 返回全部已完成文件的汇总；出错时汇总只包含出错前完成的文件。
func Run(ctx context.Context, comp Components, set Settings, logger *diag.Logger) (contract.Summary, error) {
	var total contract.Summary
	if err := sanity(comp, set); err != nil {
		return total, fmt.Errorf("sanity: %w", err)
	}
	if set.Concurrency < 1 {
		set.Concurrency = 1
	}
	if logger == nil {
		logger = diag.Nop()
	}
	m := set.Metrics
	if m == nil {
		m = diag.Default()
	}
	pool, err := ants.NewPool(set.Concurrency)
	if err != nil {
		return total, fmt.Errorf("worker pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := &runner{comp: comp, set: set, log: logger, metrics: m, pool: pool, cancel: cancel}

	rtimer := logger.Start("reader", "iterate")
	err = comp.Reader.Iterate(ctx, set.Inputs, func(fid contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		sum, err := r.file(ctx, fid, rc)
		if errors.Is(err, contract.ErrSkip) {
			logger.Warn("splitter", "skip", "file out of scope", string(fid), nil)
			return nil
		}
		if err != nil {
			return err
		}
		total.Merge(sum)
		return nil
	})
	if err != nil {
		r.fail("reader", "iterate failed", "", "", err, rtimer.Since())
		return total, fmt.Errorf("reader iterate: %w", err)
	}
	rtimer.Finish("iterate", int64(total.Files))
	r.ok("reader", rtimer.Since())
	return total, nil
}

func (r *runner) fail(comp, msg, fileID, batch string, err error, since time.Time) {
	code := diag.Classify(err)
	r.log.ErrorWithKV(comp, string(code), msg, &since, fileID, batch, map[string]string{"err": err.Error()})
	r.metrics.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		r.metrics.IncError(comp, code)
	}
}

func (r *runner) ok(comp string, since time.Time) {
	r.metrics.IncOp(comp, "finish", "success")
	r.metrics.ObserveDuration(comp, "finish", time.Since(since).Milliseconds())
}

// file 处理单个文件：拆分、切批、并发解码、按序装配并流式写出报告与边车。
func (r *runner) file(ctx context.Context, fid contract.FileID, src io.Reader) (sum contract.Summary, err error) {
	stimer := r.log.StartWith("splitter", "split", string(fid), "")
	recs, err := r.comp.Splitter.Split(ctx, fid, src)
	if errors.Is(err, contract.ErrSkip) {
		return sum, err
	}
	if err != nil {
		r.fail("splitter", "split failed", string(fid), "", err, stimer.Since())
		return sum, fmt.Errorf("splitter split: %w", err)
	}
	stimer.Finish("split", int64(len(recs)))
	r.ok("splitter", stimer.Since())

	btimer := r.log.StartWith("batcher", "make", string(fid), "")
	batches, err := r.comp.Batcher.Make(ctx, recs, r.set.BatchLimit)
	if err != nil {
		r.fail("batcher", "make failed", string(fid), "", err, btimer.Since())
		return sum, fmt.Errorf("batcher make: %w", err)
	}
	btimer.Finish("make", int64(len(batches)))
	r.ok("batcher", btimer.Since())

	// 终端提示：文件开始（即使 total=0 也要发）
	term := diag.GetTerminal()
	term.FileStart(string(fid), len(batches))
	fileStart := time.Now()
	defer func() {
		term.FileFinish(err == nil, sum.Valid, sum.Total, time.Since(fileStart))
	}()

	wtimer := r.log.StartWith("writer", "write", string(fid), "")
	out := r.openOutputs(ctx, fid)

	sum.Files = 1
	ferr := r.stream(ctx, fid, batches, out, &sum)
	if werr := out.close(ferr); werr != nil && !errors.Is(werr, ferr) {
		r.fail("writer", "write failed", string(fid), "", werr, wtimer.Since())
		if ferr == nil {
			ferr = fmt.Errorf("writer write: %w", werr)
		}
	}
	if ferr != nil {
		r.cancel()
		return sum, ferr
	}
	wtimer.Finish("write", int64(sum.Total))
	r.ok("writer", wtimer.Since())
	return sum, nil
}

// outputs: 报告与可选 JSONL 边车两条管道，各自由 errgroup 中的 Writer 消费。
type outputs struct {
	report  *io.PipeWriter
	sidecar *io.PipeWriter
	enc     jsonx.Encoder
	g       *errgroup.Group
}

func (r *runner) openOutputs(ctx context.Context, fid contract.FileID) *outputs {
	g, gctx := errgroup.WithContext(ctx)
	o := &outputs{g: g}
	start := func(id contract.ArtifactID) *io.PipeWriter {
		pr, pw := io.Pipe()
		g.Go(func() error {
			err := r.comp.Writer.Write(gctx, id, pr)
			// Writer 提前返回时解除生产端阻塞
			_ = pr.CloseWithError(err)
			return err
		})
		return pw
	}
	o.report = start(contract.ReportID(fid))
	if wantsSidecar(r.comp.Writer) {
		o.sidecar = start(contract.SidecarID(fid))
		o.enc = jsonx.NewEncoder(o.sidecar)
	}
	return o
}

func wantsSidecar(w contract.Writer) bool {
	if p, ok := w.(contract.SidecarPolicy); ok {
		return p.WantsSidecar()
	}
	return true
}

// close 结束两条管道并等待 Writer；cause 非空时以其关闭，Writer 不会落盘半成品。
func (o *outputs) close(cause error) error {
	for _, pw := range []*io.PipeWriter{o.report, o.sidecar} {
		if pw == nil {
			continue
		}
		if cause != nil {
			_ = pw.CloseWithError(cause)
		} else {
			_ = pw.Close()
		}
	}
	return o.g.Wait()
}

type batchResult struct {
	idx     int64
	results []contract.Result
	err     error
}

// stream: 提交批到 worker 池，门闩按序冲刷到报告/边车，最后写页脚。
func (r *runner) stream(ctx context.Context, fid contract.FileID, batches []contract.Batch, out *outputs, sum *contract.Summary) error {
	fctx, fcancel := context.WithCancel(ctx)
	defer fcancel()

	hdr, err := r.comp.Assembler.Header(fctx, fid)
	if err != nil {
		r.fail("assembler", "header failed", string(fid), "", err, time.Now())
		return fmt.Errorf("assembler header: %w", err)
	}
	if _, err := io.Copy(out.report, hdr); err != nil {
		return fmt.Errorf("writer write: %w", err)
	}

	// 容量 = 批数：worker 永不阻塞在结果投递上
	outCh := make(chan batchResult, len(batches))
	go r.produce(fctx, batches, outCh)

	expect := int64(0)
	pending := make(map[int64][]contract.Result)
	var firstErr error
	done := 0
	for res := range outCh {
		done++
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				fcancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		pending[res.idx] = res.results
		for {
			results, ok := pending[expect]
			if !ok {
				break
			}
			delete(pending, expect)
			if err := r.commit(fctx, fid, expect, results, out, sum); err != nil {
				firstErr = err
				fcancel()
				break
			}
			expect++
		}
		diag.GetTerminal().FileProgress(done, len(batches), sum.Invalid())
	}
	if firstErr != nil {
		return firstErr
	}

	ftr, err := r.comp.Assembler.Footer(fctx, fid, *sum)
	if err != nil {
		r.fail("assembler", "footer failed", string(fid), "", err, time.Now())
		return fmt.Errorf("assembler footer: %w", err)
	}
	if _, err := io.Copy(out.report, ftr); err != nil {
		return fmt.Errorf("writer write: %w", err)
	}
	return nil
}

// produce 逐批提交到池；池满时 Submit 阻塞形成背压。全部任务结束后关闭 outCh。
func (r *runner) produce(ctx context.Context, batches []contract.Batch, outCh chan<- batchResult) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(outCh)
	}()
	for _, b := range batches {
		if ctx.Err() != nil {
			return
		}
		wg.Add(1)
		if err := r.pool.Submit(func() {
			defer wg.Done()
			outCh <- r.decode(ctx, b)
		}); err != nil {
			wg.Done()
			outCh <- batchResult{idx: b.BatchIndex, err: fmt.Errorf("worker submit: %w", err)}
			return
		}
	}
}

func (r *runner) decode(ctx context.Context, b contract.Batch) (res batchResult) {
	res.idx = b.BatchIndex
	batch := strconv.FormatInt(b.BatchIndex, 10)
	t := r.log.StartWith("decoder", "decode", string(b.FileID), batch)
	defer func() {
		if p := recover(); p != nil {
			res = batchResult{idx: b.BatchIndex, err: fmt.Errorf("%w: decoder panic: %v", contract.ErrInvariantViolation, p)}
			r.fail("decoder", "decode panic", string(b.FileID), batch, res.err, t.Since())
		}
	}()
	results, err := r.comp.Decoder.Decode(ctx, b)
	if err == nil {
		err = contract.ValidateResults(b, results)
	}
	if err != nil {
		r.fail("decoder", "decode failed", string(b.FileID), batch, err, t.Since())
		res.err = fmt.Errorf("decoder decode: %w", err)
		return res
	}
	t.Finish("decode", int64(len(results)))
	r.ok("decoder", t.Since())
	res.results = results
	return res
}

// commit 将一批结果写入边车、累计汇总与指标，再交给 Assembler 渲染到报告。
func (r *runner) commit(ctx context.Context, fid contract.FileID, idx int64, results []contract.Result, out *outputs, sum *contract.Summary) error {
	batch := strconv.FormatInt(idx, 10)
	for _, res := range results {
		if out.enc != nil {
			if err := out.enc.Encode(&sidecarRow{FileID: res.FileID, Index: res.Index, Record: res.Record}); err != nil {
				return fmt.Errorf("writer write(jsonl): %w", err)
			}
		}
		sum.Add(res.Record)
		r.metrics.ObserveRecord(res.Record)
	}
	at := r.log.StartWith("assembler", "assemble", string(fid), batch)
	rd, err := r.comp.Assembler.Assemble(ctx, fid, results)
	if err != nil {
		r.fail("assembler", "assemble failed", string(fid), batch, err, at.Since())
		return fmt.Errorf("assembler assemble: %w", err)
	}
	if _, err := io.Copy(out.report, rd); err != nil {
		return fmt.Errorf("writer write: %w", err)
	}
	at.Finish("assemble", int64(len(results)))
	r.ok("assembler", at.Since())
	return nil
}

func sanity(c Components, s Settings) error {
	if c.Reader == nil || c.Splitter == nil || c.Batcher == nil || c.Decoder == nil || c.Assembler == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	if len(s.Inputs) == 0 {
		return errors.New("pipeline: empty inputs")
	}
	return nil
}
