package columnify

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/ipc"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ydb-platform/colbuild/builder"
	"github.com/ydb-platform/colbuild/common"
)

const (
	typeBool       = "bool"
	typeInt8       = "int8"
	typeInt16      = "int16"
	typeInt32      = "int32"
	typeInt64      = "int64"
	typeUint8      = "uint8"
	typeUint16     = "uint16"
	typeUint32     = "uint32"
	typeUint64     = "uint64"
	typeFloat32    = "float32"
	typeFloat64    = "float64"
	typeString     = "string"
	typeBinary     = "binary"
	typeDate32     = "date32"
	typeDecimal128 = "decimal128"
)

const dateLayout = "2006-01-02"

// columnAppender pairs a builder with a parser for one CSV column. An empty
// CSV cell is appended as null.
type columnAppender struct {
	cfg      ColumnConfig
	builder  builder.Builder
	appendTo func(value string) error
}

func (a *columnAppender) append(value string) error {
	if value == "" {
		return a.builder.AppendNull()
	}

	return a.appendTo(value)
}

//nolint:gocyclo,funlen
func newColumnAppender(mem memory.Allocator, cfg ColumnConfig) (*columnAppender, error) {
	a := &columnAppender{cfg: cfg}

	switch cfg.Type {
	case typeBool:
		b := builder.NewBooleanBuilder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := strconv.ParseBool(value)
			if err != nil {
				return fmt.Errorf("parse bool %q: %w", value, err)
			}

			return b.Append(v)
		}
	case typeInt8, typeInt16, typeInt32, typeInt64:
		return newSignedAppender(mem, cfg)
	case typeUint8, typeUint16, typeUint32, typeUint64:
		return newUnsignedAppender(mem, cfg)
	case typeFloat32:
		b := builder.NewFloat32Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := strconv.ParseFloat(value, 32)
			if err != nil {
				return fmt.Errorf("parse float32 %q: %w", value, err)
			}

			return b.Append(float32(v))
		}
	case typeFloat64:
		b := builder.NewFloat64Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return fmt.Errorf("parse float64 %q: %w", value, err)
			}

			return b.Append(v)
		}
	case typeString:
		if cfg.Dictionary {
			b := builder.NewStringDictionaryBuilder(mem)
			a.builder = b
			a.appendTo = b.AppendString

			break
		}

		b := builder.NewStringBuilder(mem)
		a.builder = b
		a.appendTo = b.Append
	case typeBinary:
		if cfg.Dictionary {
			b := builder.NewBinaryDictionaryBuilder(mem)
			a.builder = b
			a.appendTo = b.AppendString

			break
		}

		b := builder.NewBinaryBuilder(mem)
		a.builder = b
		a.appendTo = func(value string) error { return b.Append([]byte(value)) }
	case typeDate32:
		b := builder.NewDate32Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			t, err := time.Parse(dateLayout, value)
			if err != nil {
				return fmt.Errorf("parse date %q: %w", value, err)
			}

			return b.Append(arrow.Date32FromTime(t))
		}
	case typeDecimal128:
		b := builder.NewDecimal128Builder(mem, &arrow.Decimal128Type{Precision: cfg.Precision, Scale: cfg.Scale})
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := decimal.NewFromString(value)
			if err != nil {
				return fmt.Errorf("parse decimal %q: %w", value, err)
			}

			return b.AppendDecimal(v)
		}
	default:
		return nil, fmt.Errorf("column %s type %s: %w", cfg.Name, cfg.Type, common.ErrDataTypeNotSupported)
	}

	return a, nil
}

func newSignedAppender(mem memory.Allocator, cfg ColumnConfig) (*columnAppender, error) {
	bitSize := map[string]int{typeInt8: 8, typeInt16: 16, typeInt32: 32, typeInt64: 64}[cfg.Type]

	parse := func(value string) (int64, error) {
		v, err := strconv.ParseInt(value, 10, bitSize)
		if err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", cfg.Type, value, err)
		}

		return v, nil
	}

	a := &columnAppender{cfg: cfg}

	if cfg.Adaptive {
		b := builder.NewAdaptiveIntBuilder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(v)
		}

		return a, nil
	}

	switch cfg.Type {
	case typeInt8:
		b := builder.NewInt8Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(int8(v))
		}
	case typeInt16:
		b := builder.NewInt16Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(int16(v))
		}
	case typeInt32:
		b := builder.NewInt32Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(int32(v))
		}
	case typeInt64:
		b := builder.NewInt64Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(v)
		}
	}

	return a, nil
}

func newUnsignedAppender(mem memory.Allocator, cfg ColumnConfig) (*columnAppender, error) {
	bitSize := map[string]int{typeUint8: 8, typeUint16: 16, typeUint32: 32, typeUint64: 64}[cfg.Type]

	parse := func(value string) (uint64, error) {
		v, err := strconv.ParseUint(value, 10, bitSize)
		if err != nil {
			return 0, fmt.Errorf("parse %s %q: %w", cfg.Type, value, err)
		}

		return v, nil
	}

	a := &columnAppender{cfg: cfg}

	if cfg.Adaptive {
		b := builder.NewAdaptiveUintBuilder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(v)
		}

		return a, nil
	}

	switch cfg.Type {
	case typeUint8:
		b := builder.NewUint8Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(uint8(v))
		}
	case typeUint16:
		b := builder.NewUint16Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(uint16(v))
		}
	case typeUint32:
		b := builder.NewUint32Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(uint32(v))
		}
	case typeUint64:
		b := builder.NewUint64Builder(mem)
		a.builder = b
		a.appendTo = func(value string) error {
			v, err := parse(value)
			if err != nil {
				return err
			}

			return b.Append(v)
		}
	}

	return a, nil
}

func run(logger *zap.Logger, cfg *Config, inputPath, outputPath string, skipHeader bool) error {
	mem := common.NewTrackingAllocator(memory.DefaultAllocator)

	appenders := make([]*columnAppender, 0, len(cfg.Columns))

	for _, column := range cfg.Columns {
		appender, err := newColumnAppender(mem, column)
		if err != nil {
			return fmt.Errorf("new appender for column %s: %w", column.Name, err)
		}

		appenders = append(appenders, appender)
	}

	rows, err := ingestCSV(appenders, inputPath, skipHeader)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", inputPath, err)
	}

	record, err := finishRecord(appenders, rows)
	if err != nil {
		return err
	}

	defer record.Release()

	if err := writeIPCFile(mem, record, outputPath); err != nil {
		return fmt.Errorf("write %s: %w", outputPath, err)
	}

	logger.Info("columnar conversion finished",
		zap.Int("rows", rows),
		zap.Int("columns", len(cfg.Columns)),
		zap.String("peak_memory", humanize.IBytes(uint64(mem.Peak()))),
	)

	return nil
}

func ingestCSV(appenders []*columnAppender, inputPath string, skipHeader bool) (int, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}

	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(appenders)

	rows := 0

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			return 0, fmt.Errorf("read csv row: %w", err)
		}

		if skipHeader {
			skipHeader = false
			continue
		}

		for i, appender := range appenders {
			if err := appender.append(fields[i]); err != nil {
				return 0, fmt.Errorf("row %d column %s: %w", rows, appender.cfg.Name, err)
			}
		}

		rows++
	}

	return rows, nil
}

// finishRecord assembles the finished columns into a record. The schema is
// derived from the emitted arrays, since adaptive columns settle their
// output type only at Finish.
func finishRecord(appenders []*columnAppender, rows int) (arrow.Record, error) {
	fields := make([]arrow.Field, 0, len(appenders))
	columns := make([]arrow.Array, 0, len(appenders))

	for _, appender := range appenders {
		data, err := appender.builder.Finish()
		if err != nil {
			for _, column := range columns {
				column.Release()
			}

			return nil, fmt.Errorf("finish column %s: %w", appender.cfg.Name, err)
		}

		column := array.MakeFromData(data)
		data.Release()

		columns = append(columns, column)
		fields = append(fields, arrow.Field{Name: appender.cfg.Name, Type: column.DataType(), Nullable: true})
	}

	schema := arrow.NewSchema(fields, nil)
	record := array.NewRecord(schema, columns, int64(rows))

	for _, column := range columns {
		column.Release()
	}

	return record, nil
}

func writeIPCFile(mem memory.Allocator, record arrow.Record, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	writer, err := ipc.NewFileWriter(f, ipc.WithSchema(record.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		f.Close()
		return fmt.Errorf("new ipc writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		f.Close()

		return fmt.Errorf("write record: %w", err)
	}

	if err := writer.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close ipc writer: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	return nil
}
