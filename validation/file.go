package validation

import "bytes"

type FileType string

const (
	FileTypePNG  FileType = "png"
	FileTypeJPEG FileType = "jpeg"
	FileTypeGIF  FileType = "gif"
	FileTypePDF  FileType = "pdf"
)

var magicBytes = map[FileType][]byte{
	FileTypePNG:  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	FileTypeJPEG: {0xFF, 0xD8, 0xFF},
	FileTypeGIF:  {0x47, 0x49, 0x46, 0x38},
	FileTypePDF:  {0x25, 0x50, 0x44, 0x46},
}

var mimeTypes = map[FileType]string{
	FileTypePNG:  "image/png",
	FileTypeJPEG: "image/jpeg",
	FileTypeGIF:  "image/gif",
	FileTypePDF:  "application/pdf",
}

// DetectFileType sniffs the payload's magic bytes.
func DetectFileType(data []byte) (FileType, error) {
	if len(data) == 0 {
		return "", ErrEmptyFile
	}
	for fileType, signature := range magicBytes {
		if bytes.HasPrefix(data, signature) {
			return fileType, nil
		}
	}
	return "", ErrInvalidFileType
}

// MimeType returns the canonical MIME type for a detected file type.
func MimeType(ft FileType) string {
	return mimeTypes[ft]
}

// IsConvertible reports whether the conversion engine accepts this
// input type.
func IsConvertible(ft FileType) bool {
	switch ft {
	case FileTypePNG, FileTypeJPEG, FileTypeGIF:
		return true
	default:
		return false
	}
}
