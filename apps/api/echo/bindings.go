package echoapi

import (
	"sort"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/tymastrangelo/groupgrade-sub000/core"
	"github.com/tymastrangelo/groupgrade-sub000/core/class"
)

var orderingParam = "ordering"

// Ordering is bound from `?ordering=name,-created_at`.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// sortClasses orders classes by name and/or created_at; unknown fields are ignored.
func sortClasses(classes []class.Class, orderings []core.DBOrdering) {
	orderings = core.FilterOrderings(orderings, "name", "created_at")
	if len(orderings) == 0 {
		return
	}
	sort.SliceStable(classes, func(i, j int) bool {
		a, b := classes[i], classes[j]
		for _, ord := range orderings {
			var cmp int
			switch ord.Field {
			case "name":
				cmp = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
			case "created_at":
				cmp = a.CreatedAt.Compare(b.CreatedAt)
			}
			if cmp == 0 {
				continue
			}
			if ord.Ascending {
				return cmp < 0
			}
			return cmp > 0
		}
		return false
	})
}
