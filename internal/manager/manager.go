// Package manager implements the CollectionManager: owns every
// registered Collectable, the element-path tree, the string interner
// and enum/type registries, the clock source, and orchestrates one
// tick as "call every Collectable in order, hand the frame to the
// pipeline."
package manager

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"tracecap/internal/pipeline"
	"tracecap/internal/store"
	"tracecap/pkg/collect"
	tcerrors "tracecap/pkg/errors"
	"tracecap/pkg/elementtree"
	"tracecap/pkg/enumreg"
	"tracecap/pkg/frame"
	"tracecap/pkg/interning"
	"tracecap/pkg/typereg"
)

// collectionRow is the Collections table row tracked for one
// registered collection, plus the element path it was registered
// under.
type collectionRow struct {
	id          uint16
	name        string
	path        string
	dataType    string
	isContainer bool
	isSparse    bool
	capacity    int
}

// Manager is tracecap's CollectionManager.
type Manager struct {
	log   *logrus.Entry
	store *store.Facade
	pipe  *pipeline.Pipeline

	interner *interning.Interner
	enums    *enumreg.Registry
	types    *typereg.Registry
	tree     *elementtree.Tree
	clock    ClockSource
	heartbeat int

	mu           sync.Mutex
	collectables []collect.Collectable
	rows         []collectionRow
	names        map[string]bool
	meta         map[string]elementtree.Metadata
	frameBuf     frame.Buffer

	finalized bool
	clockID   int64

	taskQueue  *pipeline.AsyncTaskQueue
	tickPeriod pipeline.RunningMean
	haveTick   bool
	lastTick   int64
}

// New returns a Manager bound to facade for persistence and clock for
// timestamps. heartbeat is the carry-forward bound recorded in
// CollectionGlobals at Finalize (spec §9's open question: either 5 or
// 10 is acceptable; tracecap records whichever the caller configured).
func New(facade *store.Facade, clock ClockSource, heartbeat int, log *logrus.Entry) *Manager {
	enums := enumreg.New()
	m := &Manager{
		log:       log,
		store:     facade,
		interner:  interning.New(),
		enums:     enums,
		types:     typereg.NewRegistry(enums),
		tree:      elementtree.New(),
		clock:     clock,
		heartbeat: heartbeat,
		names:     make(map[string]bool),
		meta:      make(map[string]elementtree.Metadata),
	}
	return m
}

// AttachPipeline wires a constructed Pipeline to this manager, and
// lazily stands up the AsyncTaskQueue that carries out-of-band
// metadata writes (here, Clocks.period refresh) independently of the
// pipeline's own CollectionData/StringMap commit path. Must be called
// before the first Collect.
func (m *Manager) AttachPipeline(p *pipeline.Pipeline) {
	m.pipe = p
	m.taskQueue = pipeline.NewAsyncTaskQueue(p.TaskQueueInterval(), m.store.SafeTransaction, m.log)
}

// Close shuts down the manager's AsyncTaskQueue, joining its consumer.
// Must not be called from within a task enqueued to it.
func (m *Manager) Close(ctx context.Context) error {
	if m.taskQueue == nil {
		return nil
	}
	return m.taskQueue.Shutdown(ctx)
}

// Interner, Enums, Types expose the manager's backing registries so
// callers can build StructDescriptors and enum Defns before
// registering collections.
func (m *Manager) Interner() *interning.Interner { return m.interner }
func (m *Manager) Enums() *enumreg.Registry       { return m.enums }
func (m *Manager) Types() *typereg.Registry       { return m.types }

func (m *Manager) register(name, path string, row collectionRow, c collect.Collectable, widget elementtree.WidgetHint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finalized {
		return tcerrors.NewConfigurationError("AddCollection", "manager already finalized")
	}
	if m.names[name] {
		return tcerrors.NewConfigurationError("AddCollection", fmt.Sprintf("collection %q already registered", name))
	}
	if err := m.tree.AddPath(path); err != nil {
		return err
	}

	row.id = uint16(len(m.rows) + 1)
	m.names[name] = true
	m.rows = append(m.rows, row)
	m.collectables = append(m.collectables, c)

	trimmed := trimRootPrefix(path)
	m.meta[trimmed] = elementtree.Metadata{
		CollectionID: int(row.id),
		WidgetHint:   widget,
	}
	return nil
}

func trimRootPrefix(path string) string {
	const prefix = "root."
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}

// AddScalar registers a primitive scalar collection at path, reading
// its value via read every tick.
func (m *Manager) AddScalar(name, path string, kind typereg.PrimitiveKind, read collect.PrimitiveReader) error {
	row := collectionRow{name: name, path: path, dataType: primitiveTypeName(kind)}
	id := uint16(len(m.rows) + 1)
	c := collect.NewScalarPrimitive(id, kind, read)
	return m.register(name, path, row, c, elementtree.WidgetPlot)
}

// AddStruct registers a scalar-of-struct collection at path, with
// heartbeat change-suppression on the serialized body.
func (m *Manager) AddStruct(name, path string, desc typereg.StructDescriptor, read collect.StructReader) error {
	row := collectionRow{name: name, path: path, dataType: desc.Name}
	id := uint16(len(m.rows) + 1)
	c := collect.NewScalarStruct(id, desc, read, m.heartbeat)
	return m.register(name, path, row, c, elementtree.WidgetTable)
}

// AddDenseContainer registers a dense container collection at path.
func (m *Manager) AddDenseContainer(name, path string, desc typereg.StructDescriptor, capacity int, size func() int, read collect.ElementReader) error {
	row := collectionRow{name: name, path: path, dataType: desc.Name, isContainer: true, capacity: capacity}
	id := uint16(len(m.rows) + 1)
	c := collect.NewDenseContainer(id, desc, capacity, size, read, m.heartbeat)
	return m.register(name, path, row, c, elementtree.WidgetTable)
}

// AddSparseContainer registers a sparse container collection at path.
func (m *Manager) AddSparseContainer(name, path string, desc typereg.StructDescriptor, capacity int, read collect.ElementReader) error {
	row := collectionRow{name: name, path: path, dataType: desc.Name, isContainer: true, isSparse: true, capacity: capacity}
	id := uint16(len(m.rows) + 1)
	c := collect.NewSparseContainer(id, desc, capacity, read, m.heartbeat)
	return m.register(name, path, row, c, elementtree.WidgetTable)
}

func primitiveTypeName(k typereg.PrimitiveKind) string {
	names := map[typereg.PrimitiveKind]string{
		typereg.PrimitiveInt8: "int8", typereg.PrimitiveInt16: "int16",
		typereg.PrimitiveInt32: "int32", typereg.PrimitiveInt64: "int64",
		typereg.PrimitiveUint8: "uint8", typereg.PrimitiveUint16: "uint16",
		typereg.PrimitiveUint32: "uint32", typereg.PrimitiveUint64: "uint64",
		typereg.PrimitiveFloat32: "float32", typereg.PrimitiveFloat64: "float64",
		typereg.PrimitiveBool: "bool",
	}
	return names[k]
}

// Finalize writes Collections, ElementTreeNodes, Clocks, enum defs,
// struct field defs, and CollectionGlobals, then freezes the manager
// against further AddCollection calls.
func (m *Manager) Finalize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finalized {
		return tcerrors.NewConfigurationError("Finalize", "already finalized")
	}

	err := m.store.SafeTransaction(ctx, func(ctx context.Context) error {
		for _, row := range m.rows {
			_, err := m.store.Insert(ctx, "Collections",
				[]string{"name", "data_type", "is_container", "is_sparse", "capacity"},
				[]interface{}{row.name, row.dataType, boolToInt(row.isContainer), boolToInt(row.isSparse), row.capacity})
			if err != nil {
				return err
			}
		}

		clockRow, err := m.store.Insert(ctx, "Clocks", []string{"name", "period"}, []interface{}{"default", 0})
		if err != nil {
			return err
		}
		m.clockID = clockRow.ID
		for path, md := range m.meta {
			md.ClockID = int(clockRow.ID)
			m.meta[path] = md
		}

		nodes := m.tree.Serialize(m.meta)
		for _, n := range nodes {
			_, err := m.store.Insert(ctx, "ElementTreeNodes",
				[]string{"id", "name", "parent_id", "clock_id", "collection_id", "offset", "widget_hint"},
				[]interface{}{n.ID, n.Name, n.ParentID, n.ClockID, n.CollectionID, n.Offset, string(n.WidgetHint)})
			if err != nil {
				return err
			}
		}

		for _, d := range m.enums.DrainNew() {
			for _, label := range d.Labels {
				_, err := m.store.Insert(ctx, "EnumDefns",
					[]string{"enum_name", "label", "value_blob", "underlying_type"},
					[]interface{}{d.EnumName, label.Name, encodeEnumValue(label.Value, d.UnderlyingWidth), fmt.Sprintf("int%d", d.UnderlyingWidth*8)})
				if err != nil {
					return err
				}
			}
		}

		for _, sd := range m.types.DrainNew() {
			for ordinal, f := range sd.Fields {
				_, err := m.store.Insert(ctx, "StructFields",
					[]string{"struct_name", "ordinal", "field_name", "field_type", "format_code", "is_color_key", "visible_by_default"},
					[]interface{}{sd.Name, ordinal, f.Name, fieldKindName(f), formatHint(f), 0, 1})
				if err != nil {
					return err
				}
			}
		}

		timeType := string(m.clock.TimeType())
		_, err = m.store.Insert(ctx, "CollectionGlobals", []string{"time_type", "heartbeat"}, []interface{}{timeType, m.heartbeat})
		return err
	})
	if err != nil {
		return err
	}
	m.finalized = true
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeEnumValue(v int64, width int) []byte {
	out := make([]byte, width)
	for i := 0; i < width; i++ {
		out[i] = byte(v >> (8 * i))
	}
	return out
}

func fieldKindName(f typereg.FieldDescriptor) string {
	switch f.Kind {
	case typereg.FieldEnum:
		return "enum:" + f.EnumName
	case typereg.FieldInternedString:
		return "string"
	case typereg.FieldHexInt:
		return "hexint"
	case typereg.FieldFixedChar:
		return fmt.Sprintf("char[%d]", f.CharWidth)
	default:
		return primitiveTypeName(f.Primitive)
	}
}

func formatHint(f typereg.FieldDescriptor) string {
	if f.Kind == typereg.FieldHexInt {
		return "hex"
	}
	return ""
}

// Collect performs one tick: validates strictly-increasing time,
// builds the frame by invoking every Collectable in registered order,
// and hands the resulting bytes and timestamp to the pipeline.
func (m *Manager) Collect(ctx context.Context) error {
	m.mu.Lock()
	if !m.finalized {
		m.mu.Unlock()
		return tcerrors.NewConfigurationError("Collect", "manager not finalized")
	}

	tick, _, err := m.clock.Next()
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.observeTickPeriod(tick)

	m.frameBuf.Reset()
	for _, c := range m.collectables {
		if err := c.Collect(&m.frameBuf, m.interner); err != nil {
			m.mu.Unlock()
			return err
		}
	}
	frameBytes := append([]byte(nil), m.frameBuf.Bytes()...)
	m.mu.Unlock()

	return m.pipe.Push(ctx, frameBytes, tick)
}

// observeTickPeriod folds the interval since the previous tick into a
// running mean and enqueues a background task refreshing
// Clocks.period with the observed value — out-of-band metadata routed
// through the AsyncTaskQueue rather than the hot CollectionData commit
// path. Caller must hold m.mu.
func (m *Manager) observeTickPeriod(tick int64) {
	if m.haveTick {
		m.tickPeriod.Observe(float64(tick - m.lastTick))
	}
	m.lastTick = tick
	m.haveTick = true

	if m.taskQueue == nil {
		return
	}
	clockID := m.clockID
	period := int64(m.tickPeriod.Value())
	m.taskQueue.Enqueue(pipeline.NewTask(func(ctx context.Context) error {
		return m.store.UpdateScalar(ctx, "Clocks", "period", clockID, period)
	}))
}

// WithTransaction implements pipeline.Committer, running fn inside one
// facade.SafeTransaction scope so a batch of CommitFrame calls plus the
// trailing DrainInternedStrings commit or roll back atomically.
func (m *Manager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.store.SafeTransaction(ctx, fn)
}

// CommitFrame implements pipeline.Committer, inserting one
// CollectionData row per committed frame. Must be called from within a
// WithTransaction scope.
func (m *Manager) CommitFrame(ctx context.Context, timestamp int64, blob []byte, compressed bool) error {
	_, err := m.store.Insert(ctx, "CollectionData",
		[]string{"timestamp", "data_vals", "is_compressed"},
		[]interface{}{timestamp, blob, boolToInt(compressed)})
	return err
}

// DrainInternedStrings implements pipeline.Committer, flushing every
// string interned since the last drain into StringMap. The drain takes
// m.mu, which Collect holds while it interns, so the two never overlap.
func (m *Manager) DrainInternedStrings(ctx context.Context) error {
	m.mu.Lock()
	entries := m.interner.DrainNew()
	m.mu.Unlock()
	if len(entries) == 0 {
		return nil
	}
	for _, e := range entries {
		if _, err := m.store.Insert(ctx, "StringMap", []string{"id", "text"}, []interface{}{e.ID, e.Text}); err != nil {
			return err
		}
	}
	return nil
}
