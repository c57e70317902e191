package dicomfile

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Override is a partial TagSet supplied by the operator. Fields present
// replace the corresponding extracted value; fields absent leave the
// extracted value untouched.
type Override map[Field]string

// Fields returns the overridden field names in stable order.
func (o Override) Fields() []Field {
	fields := make([]Field, 0, len(o))
	for f := range o {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i] < fields[j] })
	return fields
}

// Apply merges an override into a TagSet and returns the result. The merge is
// pure and idempotent. An override that names an unknown field fails with
// ErrUnknownField; one that would clear a required field fails with
// ErrRequiredFieldRemoved instead of silently regressing completeness.
func Apply(ts TagSet, ov Override) (TagSet, error) {
	for _, f := range ov.Fields() {
		info, ok := fieldRegistry[f]
		if !ok {
			return TagSet{}, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		if info.Required && ov[f] == "" {
			return TagSet{}, fmt.Errorf("%w: %s", ErrRequiredFieldRemoved, f)
		}
	}

	out := ts
	for _, f := range ov.Fields() {
		out.set(f, ov[f])
	}
	return out, nil
}

// Transfer syntaxes whose element stream the writer reproduces byte-safely.
// Anything else (big endian, deflated, encapsulated pixel encodings) is
// refused rather than risk corrupting the payload.
var rewritableTransferSyntaxes = map[string]bool{
	"1.2.840.10008.1.2":   true, // implicit VR little endian
	"1.2.840.10008.1.2.1": true, // explicit VR little endian
}

// Materialize derives a new file payload with the override applied to the
// metadata block. Bulk pixel data is carried over untouched. The original
// content is never modified.
func Materialize(content []byte, ov Override) ([]byte, error) {
	if len(ov) == 0 {
		out := make([]byte, len(content))
		copy(out, content)
		return out, nil
	}

	for _, f := range ov.Fields() {
		if _, ok := fieldRegistry[f]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
	}

	// Check the transfer syntax from a metadata-only pass before attempting
	// the full parse: encapsulated encodings are refused, not decoded.
	meta, err := Extract(content)
	if err != nil {
		return nil, err
	}
	if !rewritableTransferSyntaxes[meta.TransferSyntaxUID] {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEncoding, meta.TransferSyntaxUID)
	}

	ds, err := dicom.Parse(bytes.NewReader(content), int64(len(content)), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableContent, err)
	}

	for _, f := range ov.Fields() {
		elem, err := dicom.NewElement(fieldRegistry[f].Tag, []string{ov[f]})
		if err != nil {
			return nil, fmt.Errorf("build element for %s: %w", f, err)
		}
		replaceOrInsert(&ds, elem)
	}

	var buf bytes.Buffer
	if err := dicom.Write(&buf, ds); err != nil {
		return nil, fmt.Errorf("rewrite data set: %w", err)
	}
	return buf.Bytes(), nil
}

// replaceOrInsert swaps an existing element in place, or inserts the new
// element before PixelData so the bulk data stays last in the stream.
func replaceOrInsert(ds *dicom.Dataset, elem *dicom.Element) {
	for i, e := range ds.Elements {
		if e.Tag == elem.Tag {
			ds.Elements[i] = elem
			return
		}
	}
	for i, e := range ds.Elements {
		if e.Tag == tag.PixelData {
			ds.Elements = append(ds.Elements[:i], append([]*dicom.Element{elem}, ds.Elements[i:]...)...)
			return
		}
	}
	ds.Elements = append(ds.Elements, elem)
}
