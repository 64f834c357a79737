package common

import (
	"context"
	"fmt"
	"reflect"

	g "github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
)

var (
	dialect = g.Dialect("mysql")
)

// QueryArg 动态查询参数（列表类查询使用，写路径一律使用原生 SQL）
type QueryArg struct {
	Table  string                  // table
	Fields []interface{}           // query fields
	Ex     []exp.Expression        // where conditions
	Order  []exp.OrderedExpression // order conditions
	Offset uint                    // offset
	Limit  uint                    // limit
}

// EnumFields 按 struct 的 db tag 枚举列名
func EnumFields(obj interface{}) []interface{} {
	rt := reflect.TypeOf(obj)
	if rt.Kind() == reflect.Ptr {
		rt = rt.Elem()
	}
	if rt.Kind() != reflect.Struct {
		return nil
	}

	var fields []interface{}
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if field := f.Tag.Get("db"); field != "" && field != "-" {
			fields = append(fields, field)
		}
	}
	return fields
}

// BuildSelect 生成带占位符的 SELECT 语句（prepared 模式，参数不拼接进 SQL）
func BuildSelect(args QueryArg) (string, []interface{}, error) {
	if args.Table == "" {
		return "", nil, fmt.Errorf("invalid table")
	}
	if len(args.Fields) == 0 {
		return "", nil, fmt.Errorf("invalid fields")
	}

	ds := dialect.Select(args.Fields...).From(args.Table).Prepared(true)
	if len(args.Ex) > 0 {
		ds = ds.Where(args.Ex...)
	}
	if len(args.Order) > 0 {
		ds = ds.Order(args.Order...)
	}
	if args.Offset > 0 {
		ds = ds.Offset(args.Offset)
	}
	if args.Limit > 0 {
		ds = ds.Limit(args.Limit)
	}
	return ds.ToSQL()
}

// SelectAll 执行动态查询并扫描到 data（切片指针）
func SelectAll(ctx context.Context, q sqlx.QueryerContext, data interface{}, args QueryArg) error {
	query, params, err := BuildSelect(args)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q, data, query, params...)
}
