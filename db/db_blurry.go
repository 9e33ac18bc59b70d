package db

import (
	"fmt"
	"reflect"
	"strings"

	"gorm.io/gorm"
)

// Query is one predicate parsed from a `query:"type:<op>,field:<col>[|<col>],omitempty"` tag.
type Query struct {
	Fields []string
	Type   string
	Value  any
}

var operators = map[string]string{
	"l_like":    " LIKE ? ESCAPE '!'",
	"r_like":    " LIKE ? ESCAPE '!'",
	"in_like":   " LIKE ? ESCAPE '!'",
	"gte":       " >= ?",
	"gt":        " > ?",
	"lte":       " <= ?",
	"lt":        " < ?",
	"equal":     " = ?",
	"not_equal": " <> ?",
	"in":        " IN ?",
}

func parseFilter(filter any) []Query {
	var filters []Query
	tp := reflect.TypeOf(filter)
	vars := reflect.ValueOf(filter)
	if tp.Kind() == reflect.Pointer {
		if vars.IsNil() {
			return nil
		}
		tp, vars = tp.Elem(), vars.Elem()
	}
	if tp.Kind() != reflect.Struct {
		return nil
	}
	for i := 0; i < tp.NumField(); i++ {
		tag, ok := tp.Field(i).Tag.Lookup("query")
		if !ok {
			continue
		}
		var q Query
		omitEmpty := false
		for _, part := range strings.Split(strings.TrimSpace(tag), ",") {
			key, val, _ := strings.Cut(part, ":")
			switch key {
			case "type":
				q.Type = val
			case "field":
				q.Fields = strings.Split(val, "|")
			case "omitempty":
				omitEmpty = true
			}
		}
		if _, known := operators[q.Type]; !known || len(q.Fields) == 0 {
			continue
		}
		fv := vars.Field(i)
		if omitEmpty && fv.Kind() != reflect.Bool && fv.IsZero() {
			continue
		}
		q.Value = fv.Interface()
		filters = append(filters, q)
	}
	return filters
}

// likeEscaper makes wildcards in user input match literally.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func (q Query) arg() any {
	switch q.Type {
	case "in_like":
		return "%" + likeEscaper.Replace(fmt.Sprint(q.Value)) + "%"
	case "r_like":
		return likeEscaper.Replace(fmt.Sprint(q.Value)) + "%"
	case "l_like":
		return "%" + likeEscaper.Replace(fmt.Sprint(q.Value))
	}
	return q.Value
}

// BuildWhere ANDs one condition per tagged, non-omitted field of filter.
// Multi-column fields are ORed inside their own group.
func BuildWhere(db *gorm.DB, filter any) *gorm.DB {
	if filter == nil {
		return db
	}
	for _, q := range parseFilter(filter) {
		op := operators[q.Type]
		if len(q.Fields) == 1 {
			db = db.Where(q.Fields[0]+op, q.arg())
			continue
		}
		group := db.Session(&gorm.Session{NewDB: true})
		for _, fd := range q.Fields {
			group = group.Or(fd+op, q.arg())
		}
		db = db.Where(group)
	}
	return db
}
