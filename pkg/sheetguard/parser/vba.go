package parser

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/richardlehane/mscfb"
)

// vbaProjectPath is where OOXML workbooks embed their macro project.
const vbaProjectPath = "xl/vbaProject.bin"

// Macro is one VBA module recovered from a workbook's macro project stream.
type Macro struct {
	Name string
	Code string
}

// dir stream record identifiers from the VBA project binary format.
const (
	recProjectVersion = 0x0009
	recTerminator     = 0x0010
	recModuleName     = 0x0019
	recModuleStream   = 0x001A
	recModuleTerm     = 0x002B
	recModuleOffset   = 0x0031
)

var errNotCompressed = errors.New("not a compressed container")

// ExtractMacros returns the VBA modules embedded in a zip-packaged workbook.
// A workbook without a macro project yields no macros and no error. A single
// undecodable module is logged and skipped; only an unreadable archive fails.
func ExtractMacros(path string) ([]Macro, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer zr.Close()

	var project []byte
	for _, zf := range zr.File {
		if zf.Name != vbaProjectPath {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", vbaProjectPath, err)
		}
		project, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", vbaProjectPath, err)
		}
		break
	}
	if project == nil {
		return nil, nil
	}
	return parseProject(project)
}

// parseProject walks the OLE compound file holding a VBA project and decodes
// each module's source.
func parseProject(project []byte) ([]Macro, error) {
	doc, err := mscfb.New(bytes.NewReader(project))
	if err != nil {
		return nil, fmt.Errorf("parse macro project: %w", err)
	}

	streams := map[string][]byte{}
	var dirPath string
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if entry.Size <= 0 {
			continue
		}
		data := make([]byte, entry.Size)
		n, rerr := io.ReadFull(entry, data)
		if rerr != nil && rerr != io.ErrUnexpectedEOF {
			log.Printf("[Extractor] Skipping macro stream %q: %v", entry.Name, rerr)
			continue
		}
		key := streamKey(entry.Path, entry.Name)
		streams[strings.ToUpper(key)] = data[:n]
		if strings.EqualFold(entry.Name, "dir") {
			dirPath = key
		}
	}
	if dirPath == "" {
		log.Printf("[Extractor] Macro project has no dir stream; no modules recovered")
		return nil, nil
	}

	dir, err := decompressContainer(streams[strings.ToUpper(dirPath)])
	if err != nil {
		log.Printf("[Extractor] Cannot decode macro project dir stream: %v", err)
		return nil, nil
	}

	// Modules live beside the dir stream inside the project storage.
	storage := ""
	if i := strings.LastIndex(dirPath, "/"); i >= 0 {
		storage = dirPath[:i+1]
	}

	var macros []Macro
	for _, mod := range parseDirStream(dir) {
		stream, ok := streams[strings.ToUpper(storage+mod.streamName)]
		if !ok {
			log.Printf("[Extractor] Module %q: stream %q not found", mod.name, mod.streamName)
			continue
		}
		if int(mod.offset) >= len(stream) {
			log.Printf("[Extractor] Module %q: source offset %d past stream end", mod.name, mod.offset)
			continue
		}
		source, err := decompressContainer(stream[mod.offset:])
		if err != nil {
			log.Printf("[Extractor] Module %q: %v", mod.name, err)
			continue
		}
		macros = append(macros, Macro{Name: mod.name, Code: string(source)})
	}
	return macros, nil
}

func streamKey(path []string, name string) string {
	if len(path) == 0 {
		return name
	}
	return strings.Join(path, "/") + "/" + name
}

// dirModule is one module record from the decompressed dir stream.
type dirModule struct {
	name       string
	streamName string
	offset     uint32
}

// parseDirStream reads the module table out of a decompressed dir stream.
// Records are id(u16) size(u32) data; the PROJECTVERSION record's size field
// is a reserved constant while its payload is six bytes, so it is special-
// cased.
func parseDirStream(dir []byte) []dirModule {
	var modules []dirModule
	var current dirModule
	i := 0
	for i+6 <= len(dir) {
		id := binary.LittleEndian.Uint16(dir[i:])
		size := int(binary.LittleEndian.Uint32(dir[i+2:]))
		i += 6
		if id == recProjectVersion {
			size = 6
		}
		if i+size > len(dir) {
			break
		}
		data := dir[i : i+size]
		i += size
		switch id {
		case recModuleName:
			current.name = string(data)
		case recModuleStream:
			current.streamName = string(data)
		case recModuleOffset:
			if len(data) >= 4 {
				current.offset = binary.LittleEndian.Uint32(data)
			}
		case recModuleTerm:
			if current.streamName == "" {
				current.streamName = current.name
			}
			if current.streamName != "" {
				modules = append(modules, current)
			}
			current = dirModule{}
		case recTerminator:
			return modules
		}
	}
	return modules
}

// decompressContainer decodes a VBA compressed container: a 0x01 signature
// byte followed by 4096-byte chunks, each either raw or RLE-compressed with
// flag-grouped literal and copy tokens.
func decompressContainer(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != 0x01 {
		return nil, errNotCompressed
	}
	var out []byte
	i := 1
	for i+2 <= len(data) {
		header := binary.LittleEndian.Uint16(data[i:])
		i += 2
		size := int(header&0x0FFF) + 1
		compressed := header&0x8000 != 0
		if !compressed {
			end := i + 4096
			if end > len(data) {
				end = len(data)
			}
			out = append(out, data[i:end]...)
			i = end
			continue
		}
		chunkEnd := i + size
		if chunkEnd > len(data) {
			chunkEnd = len(data)
		}
		chunkStart := len(out)
		for i < chunkEnd {
			flags := data[i]
			i++
			for bit := 0; bit < 8 && i < chunkEnd; bit++ {
				if flags&(1<<bit) == 0 {
					out = append(out, data[i])
					i++
					continue
				}
				if i+2 > chunkEnd {
					i = chunkEnd
					break
				}
				token := binary.LittleEndian.Uint16(data[i:])
				i += 2
				offset, length := copyToken(token, len(out)-chunkStart)
				start := len(out) - offset
				if start < chunkStart {
					return nil, fmt.Errorf("copy token reaches before chunk start")
				}
				for j := 0; j < length; j++ {
					out = append(out, out[start+j])
				}
			}
		}
	}
	return out, nil
}

// copyToken splits a copy token into (offset, length). The split point
// depends on how much of the current chunk is already decompressed.
func copyToken(token uint16, position int) (offset, length int) {
	bitCount := 4
	for (1 << bitCount) < position {
		bitCount++
	}
	if bitCount > 12 {
		bitCount = 12
	}
	lengthMask := uint16(0xFFFF) >> bitCount
	offset = int(token>>(16-bitCount)) + 1
	length = int(token&lengthMask) + 3
	return offset, length
}
