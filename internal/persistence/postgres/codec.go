package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"jcrcore/internal/itemid"
	"jcrcore/internal/itemstate"
	"jcrcore/internal/refs"
	"jcrcore/internal/value"
)

type qnameDTO struct {
	URI   string `json:"uri,omitempty"`
	Local string `json:"local"`
}

func toQNameDTO(q itemid.QName) qnameDTO { return qnameDTO{URI: q.URI, Local: q.Local} }
func fromQNameDTO(d qnameDTO) itemid.QName {
	return itemid.QName{URI: d.URI, Local: d.Local}
}

type childEntryDTO struct {
	Name  qnameDTO  `json:"name"`
	UUID  uuid.UUID `json:"uuid"`
	Index int       `json:"index"`
}

type valueDTO struct {
	Type    value.Type `json:"type"`
	Str     string     `json:"str,omitempty"`
	Bytes   []byte     `json:"bytes,omitempty"`
	Long    int64      `json:"long,omitempty"`
	Double  float64    `json:"double,omitempty"`
	Date    time.Time  `json:"date,omitempty"`
	Bool    bool       `json:"bool,omitempty"`
	Name    qnameDTO   `json:"name,omitempty"`
	Path    []qnameDTO `json:"path,omitempty"`
	Ref     uuid.UUID  `json:"ref,omitempty"`
	Decimal string     `json:"decimal,omitempty"`
	BlobKey string     `json:"blob_key,omitempty"`
	BlobLen int64      `json:"blob_len,omitempty"`
}

func toValueDTO(v value.InternalValue) valueDTO {
	d := valueDTO{
		Type: v.Type, Str: v.Str, Bytes: v.Bytes, Long: v.Long, Double: v.Double,
		Date: v.Date, Bool: v.Bool, Name: toQNameDTO(v.Name), Ref: v.Ref, Decimal: v.Decimal,
		BlobKey: v.Blob.Key, BlobLen: v.Blob.Size,
	}
	for _, p := range v.Path {
		d.Path = append(d.Path, toQNameDTO(p))
	}
	return d
}

func fromValueDTO(d valueDTO) value.InternalValue {
	v := value.InternalValue{
		Type: d.Type, Str: d.Str, Bytes: d.Bytes, Long: d.Long, Double: d.Double,
		Date: d.Date, Bool: d.Bool, Name: fromQNameDTO(d.Name), Ref: d.Ref, Decimal: d.Decimal,
		Blob: value.BlobRef{Key: d.BlobKey, Size: d.BlobLen},
	}
	for _, p := range d.Path {
		v.Path = append(v.Path, fromQNameDTO(p))
	}
	return v
}

type itemRefDTO struct {
	IsNode     bool      `json:"is_node"`
	NodeUUID   uuid.UUID `json:"node_uuid,omitempty"`
	ParentUUID uuid.UUID `json:"parent_uuid,omitempty"`
	Name       qnameDTO  `json:"name,omitempty"`
}

func toItemRefDTO(id itemid.ItemId) itemRefDTO {
	if id.DenotesNode() {
		return itemRefDTO{IsNode: true, NodeUUID: id.UUID()}
	}
	return itemRefDTO{IsNode: false, ParentUUID: id.ParentUUID(), Name: toQNameDTO(id.Name())}
}

func fromItemRefDTO(d itemRefDTO) itemid.ItemId {
	if d.IsNode {
		return itemid.NodeId(d.NodeUUID)
	}
	return itemid.PropertyId(d.ParentUUID, fromQNameDTO(d.Name))
}

type nodeDTO struct {
	UUID          uuid.UUID       `json:"uuid"`
	ParentUUID    uuid.UUID       `json:"parent_uuid,omitempty"`
	HasParent     bool            `json:"has_parent"`
	NodeTypeName  qnameDTO        `json:"node_type_name"`
	MixinTypes    []qnameDTO      `json:"mixin_types,omitempty"`
	Children      []childEntryDTO `json:"children,omitempty"`
	PropertyNames []qnameDTO      `json:"property_names,omitempty"`
	Status        itemstate.Status `json:"status"`
	DefinitionID  string          `json:"definition_id,omitempty"`
}

func encodeNode(n *itemstate.NodeState) nodeDTO {
	d := nodeDTO{
		UUID: n.UUID, ParentUUID: n.ParentUUID, HasParent: n.HasParent,
		NodeTypeName: toQNameDTO(n.NodeTypeName), Status: n.Status(), DefinitionID: n.DefinitionID(),
	}
	for _, m := range n.MixinTypes {
		d.MixinTypes = append(d.MixinTypes, toQNameDTO(m))
	}
	for _, c := range n.Children {
		d.Children = append(d.Children, childEntryDTO{Name: toQNameDTO(c.Name), UUID: c.UUID, Index: c.Index})
	}
	for _, p := range n.PropertyNames {
		d.PropertyNames = append(d.PropertyNames, toQNameDTO(p))
	}
	return d
}

func decodeNode(payload []byte) (*itemstate.NodeState, error) {
	var d nodeDTO
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("decode node: %w", err)
	}
	n := itemstate.NewNodeState(d.UUID)
	n.ParentUUID = d.ParentUUID
	n.HasParent = d.HasParent
	n.NodeTypeName = fromQNameDTO(d.NodeTypeName)
	for _, m := range d.MixinTypes {
		n.MixinTypes = append(n.MixinTypes, fromQNameDTO(m))
	}
	for _, c := range d.Children {
		n.Children = append(n.Children, itemstate.ChildEntry{Name: fromQNameDTO(c.Name), UUID: c.UUID, Index: c.Index})
	}
	for _, p := range d.PropertyNames {
		n.PropertyNames = append(n.PropertyNames, fromQNameDTO(p))
	}
	n.SetStatus(d.Status)
	n.SetDefinitionID(d.DefinitionID)
	return n, nil
}

type propertyDTO struct {
	ParentUUID  uuid.UUID        `json:"parent_uuid"`
	QName       qnameDTO         `json:"qname"`
	ValueType   value.Type       `json:"value_type"`
	MultiValued bool             `json:"multi_valued"`
	Values      []valueDTO       `json:"values,omitempty"`
	Status      itemstate.Status `json:"status"`
	DefinitionID string          `json:"definition_id,omitempty"`
}

func encodeProperty(p *itemstate.PropertyState) propertyDTO {
	d := propertyDTO{
		ParentUUID: p.ParentUUID, QName: toQNameDTO(p.QName), ValueType: p.ValueType,
		MultiValued: p.MultiValued, Status: p.Status(), DefinitionID: p.DefinitionID(),
	}
	for _, v := range p.Values {
		d.Values = append(d.Values, toValueDTO(v))
	}
	return d
}

func decodeProperty(payload []byte) (*itemstate.PropertyState, error) {
	var d propertyDTO
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("decode property: %w", err)
	}
	p := itemstate.NewPropertyState(d.ParentUUID, fromQNameDTO(d.QName))
	p.ValueType = d.ValueType
	p.MultiValued = d.MultiValued
	for _, v := range d.Values {
		p.Values = append(p.Values, fromValueDTO(v))
	}
	p.SetStatus(d.Status)
	p.SetDefinitionID(d.DefinitionID)
	return p, nil
}

type referencesDTO struct {
	TargetUUID uuid.UUID    `json:"target_uuid"`
	References []itemRefDTO `json:"references,omitempty"`
}

func encodeReferences(r *refs.NodeReferences) referencesDTO {
	d := referencesDTO{TargetUUID: r.ID.TargetUUID}
	for _, ref := range r.References {
		d.References = append(d.References, toItemRefDTO(ref))
	}
	return d
}

func decodeReferences(payload []byte) (*refs.NodeReferences, error) {
	var d referencesDTO
	if err := json.Unmarshal(payload, &d); err != nil {
		return nil, fmt.Errorf("decode references: %w", err)
	}
	r := refs.New(itemid.NodeReferencesId{TargetUUID: d.TargetUUID})
	for _, ref := range d.References {
		r.AddReference(fromItemRefDTO(ref))
	}
	return r, nil
}
