package odm

import (
	"fmt"
	"regexp"

	"github.com/pkg/errors"
)

var (
	keyRegex = regexp.MustCompile(`[^a-zA-Z0-9_:.@()+,=;$!*'%-]`)

	nilPod = errors.New("odm: pod is nil")
)

// Pod holds one document as returned by the server.
type Pod struct {
	// Type is the model type the document was converted to
	Type string
	// ID, Key and Rev mirror the document _id, _key and _rev
	ID  string
	Key string
	Rev string
	// Properties holds every other attribute of the document
	Properties map[string]interface{}

	saved bool
}

// SetSaved marks the pod as persisted on the server.
func (p *Pod) SetSaved() { p.saved = true }

// IsSaved reports whether the pod is persisted on the server.
func (p *Pod) IsSaved() bool { return p.saved }

// Get returns a document attribute.
func (p *Pod) Get(name string) interface{} {
	return p.Properties[name]
}

// Model is the application-facing wrapper of a pod.
type Model struct {
	pod *Pod
}

// NewModel wraps pod into a model.
func NewModel(pod *Pod) (*Model, error) {
	if pod == nil {
		return nil, nilPod
	}
	return &Model{pod: pod}, nil
}

// Pod returns the pod backing the model.
func (m *Model) Pod() *Pod { return m.pod }

// PodManager converts raw documents into models.
type PodManager struct{}

// ConvertToPods converts query rows into models of the given type. Every
// row must be a JSON object.
func (m *PodManager) ConvertToPods(typ string, rows []interface{}) ([]*Model, error) {
	typ = ToDocumentKey(typ)
	models := make([]*Model, 0, len(rows))
	for i, row := range rows {
		doc, ok := row.(map[string]interface{})
		if !ok {
			return nil, errors.New(fmt.Sprintf("odm: row %d of type %T is not a document", i, row))
		}
		model, err := NewModel(podOf(typ, doc))
		if err != nil {
			return nil, errors.Wrapf(err, "odm: failed to convert row %d", i)
		}
		models = append(models, model)
	}
	return models, nil
}

func podOf(typ string, doc map[string]interface{}) *Pod {
	pod := &Pod{
		Type:       typ,
		Properties: make(map[string]interface{}, len(doc)),
	}
	for k, v := range doc {
		switch k {
		case "_id":
			pod.ID, _ = v.(string)
		case "_key":
			pod.Key, _ = v.(string)
		case "_rev":
			pod.Rev, _ = v.(string)
		default:
			pod.Properties[k] = v
		}
	}
	return pod
}

// ToDocumentKey replaces every character not allowed in a document key
// with an underscore.
func ToDocumentKey(key string) string {
	return keyRegex.ReplaceAllString(key, "_")
}
