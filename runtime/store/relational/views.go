package relational

import (
	"context"
	"encoding/json"

	"github.com/anotherai/gateway/runtime/apierror"
	"github.com/anotherai/gateway/runtime/domain"
)

// SaveView creates or updates a saved analytical query. FolderID may be the
// empty string for the implicit default folder.
func (s *Store) SaveView(ctx context.Context, tenantUID int64, v domain.View) error {
	var graphType *string
	var graphAttrs []byte
	if v.Graph != nil {
		graphType = &v.Graph.Type
		var err error
		graphAttrs, err = json.Marshal(v.Graph.Attributes)
		if err != nil {
			return apierror.Wrap(apierror.KindInternal, "marshal view graph attributes", err)
		}
	}

	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO views (id, tenant_uid, name, query, graph_type, graph_attrs, folder_id, position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, query = EXCLUDED.query, graph_type = EXCLUDED.graph_type,
				graph_attrs = EXCLUDED.graph_attrs, folder_id = EXCLUDED.folder_id, position = EXCLUDED.position`,
			v.ID, tenantUID, v.Name, v.Query, graphType, graphAttrs, v.FolderID, v.Position)
		return err
	})
}

// DeleteView removes a saved view by id within tenantUID.
func (s *Store) DeleteView(ctx context.Context, tenantUID int64, id string) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		tag, err := conn.Exec(ctx, `DELETE FROM views WHERE id = $1 AND tenant_uid = $2`, id, tenantUID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apierror.NotFound("view", "view %q not found", id)
		}
		return nil
	})
}

// SaveViewFolder creates or renames a named view folder. The implicit
// default folder (id "") is never persisted; callers should not pass it.
func (s *Store) SaveViewFolder(ctx context.Context, tenantUID int64, f domain.ViewFolder) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		_, err := conn.Exec(ctx, `
			INSERT INTO view_folders (id, tenant_uid, name) VALUES ($1, $2, $3)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, f.ID, tenantUID, f.Name)
		return err
	})
}

// DeleteViewFolder removes a named view folder. Views previously assigned to
// it are not deleted; callers should reassign them to the default folder
// first if that is the desired behavior.
func (s *Store) DeleteViewFolder(ctx context.Context, tenantUID int64, id string) error {
	return s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		tag, err := conn.Exec(ctx, `DELETE FROM view_folders WHERE id = $1 AND tenant_uid = $2`, id, tenantUID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apierror.NotFound("view_folder", "view folder %q not found", id)
		}
		return nil
	})
}

// ListViewFolders returns every view folder for tenantUID, including the
// implicit default folder (id "") populated with any views not assigned to
// a named folder.
func (s *Store) ListViewFolders(ctx context.Context, tenantUID int64) ([]domain.ViewFolder, error) {
	folders := map[string]*domain.ViewFolder{"": {ID: "", Name: ""}}
	err := s.withConn(WithTenant(ctx, tenantUID), func(conn connQuerier) error {
		rows, err := conn.Query(ctx, `SELECT id, name FROM view_folders WHERE tenant_uid = $1`, tenantUID)
		if err != nil {
			return err
		}
		for rows.Next() {
			var f domain.ViewFolder
			if err := rows.Scan(&f.ID, &f.Name); err != nil {
				rows.Close()
				return err
			}
			folders[f.ID] = &f
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = conn.Query(ctx, `
			SELECT id, name, query, graph_type, graph_attrs, folder_id, position, created_at
			FROM views WHERE tenant_uid = $1 ORDER BY folder_id, position`, tenantUID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var view domain.View
			var graphType *string
			var graphAttrs []byte
			if err := rows.Scan(&view.ID, &view.Name, &view.Query, &graphType, &graphAttrs, &view.FolderID, &view.Position, &view.CreatedAt); err != nil {
				return err
			}
			if graphType != nil {
				g := &domain.ViewGraph{Type: *graphType}
				if len(graphAttrs) > 0 {
					if err := json.Unmarshal(graphAttrs, &g.Attributes); err != nil {
						return apierror.Wrap(apierror.KindInternal, "unmarshal view graph attributes", err)
					}
				}
				view.Graph = g
			}
			f, ok := folders[view.FolderID]
			if !ok {
				f = &domain.ViewFolder{ID: view.FolderID}
				folders[view.FolderID] = f
			}
			f.Views = append(f.Views, view)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.ViewFolder, 0, len(folders))
	for _, f := range folders {
		out = append(out, *f)
	}
	return out, nil
}
