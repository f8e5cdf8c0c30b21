package store

// ColumnType is a backend-neutral column type. Each backend maps it to its
// own DDL type.
type ColumnType string

// Column types used by the telemetry table.
const (
	TypeTimestamp ColumnType = "timestamp"
	TypeSymbol    ColumnType = "symbol"
	TypeDouble    ColumnType = "double"
	TypeInt       ColumnType = "int"
	TypeLong      ColumnType = "long"
)

// Names of the columns every row carries regardless of payload.
const (
	TimestampColumn = "ts"
	DeviceColumn    = "device_id"
)

// DefaultTableName is the telemetry table used by the reference deployment.
const DefaultTableName = "olimex_data"

// Column is one column of the telemetry table.
type Column struct {
	Name string
	Type ColumnType
}

// Table describes the fixed telemetry table. The column set never changes
// at runtime; payload keys outside it are rejected by the store.
type Table struct {
	Name    string
	Columns []Column
}

// OlimexTable returns the ventilation unit schema under the given name.
func OlimexTable(name string) Table {
	if name == "" {
		name = DefaultTableName
	}
	return Table{
		Name: name,
		Columns: []Column{
			{TimestampColumn, TypeTimestamp},
			{DeviceColumn, TypeSymbol},
			{"heat_exchanger_efficiency", TypeDouble},
			{"run_mode", TypeInt},
			{"outdoor_temp", TypeDouble},
			{"supply_air_temp", TypeDouble},
			{"supply_air_setpoint_temp", TypeDouble},
			{"exhaust_air_temp", TypeDouble},
			{"extract_air_temp", TypeDouble},
			{"supply_air_pressure", TypeDouble},
			{"extract_air_pressure", TypeDouble},
			{"supply_air_flow", TypeDouble},
			{"extract_air_flow", TypeDouble},
			{"extra_supply_air_flow", TypeDouble},
			{"extra_extract_air_flow", TypeDouble},
			{"supply_air_fan_runtime", TypeLong},
			{"extract_air_fan_runtime", TypeLong},
		},
	}
}

// Column returns the column called name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// HasColumn reports whether the table defines a column called name.
func (t Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// ValueColumns returns the columns fed from payload fields, i.e. all
// columns except the timestamp and device id.
func (t Table) ValueColumns() []Column {
	cols := make([]Column, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Name == TimestampColumn || c.Name == DeviceColumn {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}
