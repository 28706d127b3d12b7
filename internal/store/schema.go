package store

import "tracecap/pkg/schema"

// BuildSchema returns the fixed 8-table schema spec §4.2 names,
// materialized via pkg/schema.
func BuildSchema() (*schema.Builder, error) {
	b := schema.NewBuilder()

	tables := []schema.Table{
		{
			Name: "Collections",
			Columns: []schema.Column{
				schema.IDColumn(),
				schema.TextColumn("name"),
				schema.TextColumn("data_type"),
				schema.Int32Column("is_container", 0),
				schema.Int32Column("is_sparse", 0),
				schema.Int32Column("capacity", 0),
			},
		},
		{
			Name: "CollectionData",
			Columns: []schema.Column{
				schema.IDColumn(),
				schema.Int64Column("timestamp"),
				schema.BlobColumn("data_vals"),
				schema.Int32Column("is_compressed", 0),
			},
			Indexes: []schema.Index{{Columns: []string{"timestamp"}}},
		},
		{
			Name: "StructFields",
			Columns: []schema.Column{
				schema.TextColumn("struct_name"),
				schema.Int32Column("ordinal"),
				schema.TextColumn("field_name"),
				schema.TextColumn("field_type"),
				schema.TextColumn("format_code", ""),
				schema.Int32Column("is_color_key", 0),
				schema.Int32Column("visible_by_default", 1),
			},
		},
		{
			Name: "EnumDefns",
			Columns: []schema.Column{
				schema.TextColumn("enum_name"),
				schema.TextColumn("label"),
				schema.BlobColumn("value_blob"),
				schema.TextColumn("underlying_type"),
			},
		},
		{
			Name: "StringMap",
			Columns: []schema.Column{
				schema.IDColumn(),
				schema.TextColumn("text"),
			},
		},
		{
			Name: "ElementTreeNodes",
			Columns: []schema.Column{
				schema.IDColumn(),
				schema.TextColumn("name"),
				schema.Int64Column("parent_id"),
				schema.Int64Column("clock_id", 0),
				schema.Int64Column("collection_id", 0),
				schema.Int32Column("offset", 0),
				schema.TextColumn("widget_hint", ""),
			},
		},
		{
			Name: "Clocks",
			Columns: []schema.Column{
				schema.IDColumn(),
				schema.TextColumn("name"),
				schema.Int64Column("period", 0),
			},
		},
		{
			Name: "CollectionGlobals",
			Columns: []schema.Column{
				schema.TextColumn("time_type"),
				schema.Int32Column("heartbeat"),
			},
		},
	}

	for _, t := range tables {
		if err := b.AddTable(t); err != nil {
			return nil, err
		}
	}
	return b, nil
}
