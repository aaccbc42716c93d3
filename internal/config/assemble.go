package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/locales/zh"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	zhtrans "github.com/go-playground/validator/v10/translations/zh"

	"serax/internal/pipeline"
	"serax/pkg/contract"
	"serax/pkg/registry"
)

var (
	vOnce  sync.Once
	vInst  *validator.Validate
	vTrans ut.Translator
)

// structValidator: 字段名取 json 标签，错误信息为中文。
func structValidator() (*validator.Validate, ut.Translator) {
	vOnce.Do(func() {
		vInst = validator.New(validator.WithRequiredStructEnabled())
		vInst.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})
		loc := zh.New()
		vTrans, _ = ut.New(loc, loc).GetTranslator("zh")
		_ = zhtrans.RegisterDefaultTranslations(vInst, vTrans)
	})
	return vInst, vTrans
}

// Validate 结构校验 + 输入根约束 + 组件名注册检查。
func Validate(cfg Config) error {
	v, tr := structValidator()
	if err := v.Struct(cfg); err != nil {
		var ves validator.ValidationErrors
		if !errors.As(err, &ves) {
			return fmt.Errorf("config: %w", err)
		}
		msgs := make([]string, 0, len(ves))
		for _, fe := range ves {
			msgs = append(msgs, fe.Translate(tr))
		}
		return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
	}
	// "-" 不能与其他根混用
	for _, r := range cfg.Inputs {
		if strings.TrimSpace(r) == "-" && len(cfg.Inputs) > 1 {
			return errors.New("config: '-' cannot be mixed with other roots")
		}
	}
	names := effNames(cfg.Components)
	checks := []struct {
		kind string
		name string
		ok   bool
	}{
		{"reader", names.Reader, registry.Reader[names.Reader] != nil},
		{"splitter", names.Splitter, registry.Splitter[names.Splitter] != nil},
		{"batcher", names.Batcher, registry.Batcher[names.Batcher] != nil},
		{"decoder", names.Decoder, registry.Decoder[names.Decoder] != nil},
		{"assembler", names.Assembler, registry.Assembler[names.Assembler] != nil},
		{"writer", names.Writer, registry.Writer[names.Writer] != nil},
	}
	for _, c := range checks {
		if !c.ok {
			return fmt.Errorf("config: %s %q not registered", c.kind, c.name)
		}
	}
	return nil
}

// Assemble 校验后构造 Components 与 Settings。
// 严格 Options 解析在 registry（工厂）层进行；此处只传 raw JSON。
func Assemble(cfg Config) (pipeline.Components, pipeline.Settings, error) {
	var comp pipeline.Components
	if err := Validate(cfg); err != nil {
		return comp, pipeline.Settings{}, err
	}
	n := effNames(cfg.Components)

	var err error
	wrap := func(kind string, e error) error { return fmt.Errorf("config: %s options: %w", kind, e) }
	if comp.Reader, err = registry.Reader[n.Reader](cfg.Options.Reader); err != nil {
		return comp, pipeline.Settings{}, wrap("reader", err)
	}
	if comp.Splitter, err = registry.Splitter[n.Splitter](cfg.Options.Splitter); err != nil {
		return comp, pipeline.Settings{}, wrap("splitter", err)
	}
	if comp.Batcher, err = registry.Batcher[n.Batcher](cfg.Options.Batcher); err != nil {
		return comp, pipeline.Settings{}, wrap("batcher", err)
	}
	if comp.Decoder, err = registry.Decoder[n.Decoder](cfg.Options.Decoder); err != nil {
		return comp, pipeline.Settings{}, wrap("decoder", err)
	}
	if comp.Assembler, err = registry.Assembler[n.Assembler](cfg.Options.Assembler); err != nil {
		return comp, pipeline.Settings{}, wrap("assembler", err)
	}
	if comp.Writer, err = registry.Writer[n.Writer](cfg.Options.Writer); err != nil {
		return comp, pipeline.Settings{}, wrap("writer", err)
	}

	set := pipeline.Settings{
		Inputs:      cloneStrings(cfg.Inputs),
		Concurrency: cfg.Concurrency,
		BatchLimit:  contract.BatchLimit{MaxLines: cfg.Batch.MaxLines, MaxBytes: cfg.Batch.MaxBytes},
	}
	return comp, set, nil
}

// effNames 为空组件名填入默认名。
func effNames(c Components) Components {
	d := Defaults().Components
	pick := func(got, def string) string {
		if got == "" {
			return def
		}
		return got
	}
	return Components{
		Reader:    pick(c.Reader, d.Reader),
		Splitter:  pick(c.Splitter, d.Splitter),
		Batcher:   pick(c.Batcher, d.Batcher),
		Decoder:   pick(c.Decoder, d.Decoder),
		Assembler: pick(c.Assembler, d.Assembler),
		Writer:    pick(c.Writer, d.Writer),
	}
}
