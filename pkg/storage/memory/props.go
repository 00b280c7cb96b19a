package memory

import (
	"context"
	"net/http"
	"sort"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// Dead-property support. Values are opaque XML fragments stored verbatim
// on the node, keyed by namespace+name.

func (fs *FS) HaveProps(ctx context.Context, path *davpath.Path) bool {
	return true
}

func (fs *FS) GetProps(ctx context.Context, path *davpath.Path, withContent bool) ([]storage.Property, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}

	props := make([]storage.Property, 0, len(n.props))
	for _, p := range n.props {
		if !withContent {
			p.XML = nil
		}
		props = append(props, p)
	}
	sort.Slice(props, func(i, j int) bool {
		if props[i].Namespace != props[j].Namespace {
			return props[i].Namespace < props[j].Namespace
		}
		return props[i].Name < props[j].Name
	})
	return props, nil
}

func (fs *FS) GetProp(ctx context.Context, path *davpath.Path, prop storage.Property) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	n, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	stored, ok := n.props[propKey(prop)]
	if !ok {
		return nil, storage.NewError(storage.ErrNotFound, path.String())
	}
	return stored.XML, nil
}

// PatchProps applies a set/remove batch. Every element succeeds here
// (memory has no restrictions), so all statuses report 200; removing an
// absent property is a no-op success per RFC 4918 14.23.
func (fs *FS) PatchProps(ctx context.Context, path *davpath.Path, patch []storage.PropPatch) ([]storage.PropStatus, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	n, err := fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if n.props == nil {
		n.props = make(map[string]storage.Property)
	}

	result := make([]storage.PropStatus, 0, len(patch))
	for _, p := range patch {
		if p.Remove {
			delete(n.props, propKey(p.Prop))
		} else {
			n.props[propKey(p.Prop)] = p.Prop
		}
		name := p.Prop
		name.XML = nil
		result = append(result, storage.PropStatus{Status: http.StatusOK, Prop: name})
	}
	return result, nil
}
