package extract

// Decoder turns a single attachment file into zero or more image files
// inside a publication's image directory. Implementations are trusted: a
// decode error means the source attachment is corrupt and aborts the whole
// extraction run rather than leaving a silently partial gallery.
type Decoder interface {
	// ContentType is the attachment content type this decoder handles.
	ContentType() string
	// Decode writes image files for sourcePath into targetDir.
	Decode(targetDir, sourcePath string) error
}

// Registry is the closed set of decoders, registered explicitly at startup.
type Registry struct {
	decoders map[string]Decoder
}

func NewRegistry(decoders ...Decoder) *Registry {
	r := &Registry{decoders: make(map[string]Decoder, len(decoders))}
	for _, d := range decoders {
		r.decoders[d.ContentType()] = d
	}
	return r
}

// NewDefaultRegistry returns the registry with every supported attachment
// type: PDF documents and saved web page snapshots.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewPDFDecoder(), NewWebpageDecoder())
}

// Lookup returns the decoder for a content type. Absence is not an error;
// the orchestrator warns and leaves the publication without images for that
// attachment.
func (r *Registry) Lookup(contentType string) (Decoder, bool) {
	d, ok := r.decoders[contentType]
	return d, ok
}
