package relationship

import (
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
)

// Reflection helpers shared by the GORM-backed collection and source.
// Models are plain GORM structs; the primary key is found the same way
// GORM finds it: a field carrying the primaryKey tag, or a field named
// ID as fallback.

// primaryKeyIndex returns the index of the primary key field of a struct
// type, or -1 if none can be determined.
func primaryKeyIndex(structType reflect.Type) int {
	for i := 0; i < structType.NumField(); i++ {
		tag := structType.Field(i).Tag.Get("gorm")
		if strings.Contains(tag, "primaryKey") || strings.Contains(tag, "primary_key") {
			return i
		}
	}
	for i := 0; i < structType.NumField(); i++ {
		if structType.Field(i).Name == "ID" {
			return i
		}
	}
	return -1
}

// entityID extracts the primary key value of one struct (or pointer to
// struct) as a uint64.
func entityID(entity reflect.Value) (uint64, error) {
	if entity.Kind() == reflect.Ptr {
		if entity.IsNil() {
			return 0, fmt.Errorf("nil entity")
		}
		entity = entity.Elem()
	}
	idx := primaryKeyIndex(entity.Type())
	if idx < 0 {
		return 0, fmt.Errorf("no primary key field on %s", entity.Type())
	}

	field := entity.Field(idx)
	switch field.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return field.Uint(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return uint64(field.Int()), nil
	default:
		return 0, fmt.Errorf("primary key field of %s is not an integer", entity.Type())
	}
}

// newEntityRef creates a pointer to a fresh instance of elemType with
// only the primary key populated. This is how validated IDs re-enter
// the owner's unit of work: a reference by identity, never a live
// entity handle from another session.
func newEntityRef(elemType reflect.Type, id uint64) (interface{}, error) {
	if elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("relationship element type %s is not a struct", elemType)
	}

	idx := primaryKeyIndex(elemType)
	if idx < 0 {
		return nil, fmt.Errorf("no primary key field on %s", elemType)
	}

	ref := reflect.New(elemType)
	field := ref.Elem().Field(idx)
	switch field.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		field.SetUint(id)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		field.SetInt(int64(id))
	default:
		return nil, fmt.Errorf("primary key field of %s is not an integer", elemType)
	}
	return ref.Interface(), nil
}

// primaryKeyColumn resolves the database column name of a model's
// primary key via GORM's schema parser, defaulting to "id".
func primaryKeyColumn(gormDB *gorm.DB, model interface{}) string {
	stmt := &gorm.Statement{DB: gormDB}
	if err := stmt.Parse(model); err == nil && stmt.Schema != nil {
		if fields := stmt.Schema.PrimaryFields; len(fields) > 0 && fields[0] != nil {
			return fields[0].DBName
		}
	}
	return "id"
}

// entityTypeName returns the bare struct name of a model, used in
// classified error details ("Department", "Location", ...).
func entityTypeName(model interface{}) string {
	t := reflect.TypeOf(model)
	for t != nil && (t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice) {
		t = t.Elem()
	}
	if t == nil {
		return "entity"
	}
	return t.Name()
}
