// Package protos holds the protocol buffer messages of the TensorFlow object detection label map
// (object_detection/protos/string_int_label_map.proto).
package protos

import "github.com/golang/protobuf/proto"

// StringIntLabelMapItem maps a class name to its integer ID. ID 0 is reserved for the background.
type StringIntLabelMapItem struct {
	Name        *string `protobuf:"bytes,1,opt,name=name" json:"name,omitempty"`
	Id          *int32  `protobuf:"varint,2,opt,name=id" json:"id,omitempty"`
	DisplayName *string `protobuf:"bytes,3,opt,name=display_name,json=displayName" json:"display_name,omitempty"`

	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *StringIntLabelMapItem) Reset()         { *m = StringIntLabelMapItem{} }
func (m *StringIntLabelMapItem) String() string { return proto.CompactTextString(m) }
func (*StringIntLabelMapItem) ProtoMessage()    {}

func (m *StringIntLabelMapItem) GetName() string {
	if m != nil && m.Name != nil {
		return *m.Name
	}
	return ""
}

func (m *StringIntLabelMapItem) GetId() int32 {
	if m != nil && m.Id != nil {
		return *m.Id
	}
	return 0
}

func (m *StringIntLabelMapItem) GetDisplayName() string {
	if m != nil && m.DisplayName != nil {
		return *m.DisplayName
	}
	return ""
}

// StringIntLabelMap is the list of label map items.
type StringIntLabelMap struct {
	Item []*StringIntLabelMapItem `protobuf:"bytes,1,rep,name=item" json:"item,omitempty"`

	XXX_NoUnkeyedLiteral struct{} `json:"-"`
	XXX_unrecognized     []byte   `json:"-"`
	XXX_sizecache        int32    `json:"-"`
}

func (m *StringIntLabelMap) Reset()         { *m = StringIntLabelMap{} }
func (m *StringIntLabelMap) String() string { return proto.CompactTextString(m) }
func (*StringIntLabelMap) ProtoMessage()    {}

func (m *StringIntLabelMap) GetItem() []*StringIntLabelMapItem {
	if m != nil {
		return m.Item
	}
	return nil
}
