package sqlxdb

import (
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/minierp/core/docstore"
)

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name     string
		filter   docstore.Filter
		wantSQL  string
		wantArgs []interface{}
		wantErr  bool
	}{
		{
			name:     "equal",
			filter:   docstore.Filter{Field: "student_id", Op: docstore.OpEqual, Value: "S1"},
			wantSQL:  "data -> $2::text = $3::jsonb",
			wantArgs: []interface{}{"fees", "student_id", types.JSONText(`"S1"`)},
		},
		{
			name:     "number comparison",
			filter:   docstore.Filter{Field: "score", Op: docstore.OpLess, Value: 40},
			wantSQL:  "data -> $2::text < $3::jsonb",
			wantArgs: []interface{}{"fees", "score", types.JSONText(`40`)},
		},
		{
			name:     "id",
			filter:   docstore.Filter{Field: "id", Op: docstore.OpNotEqual, Value: "abc"},
			wantSQL:  "to_jsonb(id) <> $2::jsonb",
			wantArgs: []interface{}{"fees", types.JSONText(`"abc"`)},
		},
		{
			name:     "in",
			filter:   docstore.Filter{Field: "status", Op: docstore.OpIn, Value: []string{"pending", "failed"}},
			wantSQL:  "data -> $2::text IN (SELECT jsonb_array_elements($3::jsonb))",
			wantArgs: []interface{}{"fees", "status", types.JSONText(`["pending","failed"]`)},
		},
		{
			name:     "not in",
			filter:   docstore.Filter{Field: "status", Op: docstore.OpNotIn, Value: []interface{}{"completed"}},
			wantSQL:  "NOT (data -> $2::text IN (SELECT jsonb_array_elements($3::jsonb)))",
			wantArgs: []interface{}{"fees", "status", types.JSONText(`["completed"]`)},
		},
		{
			name:    "in without a list",
			filter:  docstore.Filter{Field: "status", Op: docstore.OpIn, Value: "pending"},
			wantErr: true,
		},
		{
			name:    "invalid operator",
			filter:  docstore.Filter{Field: "status", Op: "like", Value: "p%"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			where, args, err := whereClause(tc.filter, "fees")
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantSQL, where)
			assert.Equal(t, tc.wantArgs, args)
		})
	}
}

func TestRow_document(t *testing.T) {
	doc, err := row{ID: "f1", Data: types.JSONText(`{"student_id":"S1","amount":250.5,"paid_at":null}`)}.document()
	require.NoError(t, err)
	assert.Equal(t, "f1", doc.ID)
	assert.Equal(t, "S1", doc.String("student_id"))
	assert.Equal(t, 250.5, doc.Data["amount"])

	_, err = row{ID: "bad", Data: types.JSONText(`[1, 2]`)}.document()
	assert.Error(t, err)
}
