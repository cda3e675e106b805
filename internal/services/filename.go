package services

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// AllowedExtensions - расширения, которые разрешено загружать (в нижнем регистре).
var AllowedExtensions = map[string]bool{
	"txt": true, "pdf": true, "png": true, "jpg": true, "jpeg": true, "gif": true,
	"zip": true, "csv": true, "xlsx": true, "docx": true, "pptx": true,
	"mp3": true, "mp4": true, "avi": true, "mkv": true, "json": true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// Extension возвращает расширение в нижнем регистре (всё после последней точки)
// или пустую строку, если точки нет.
func Extension(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// AllowedFile сообщает, можно ли загружать файл с таким именем.
func AllowedFile(filename string) bool {
	return strings.Contains(filename, ".") && AllowedExtensions[Extension(filename)]
}

// SecureFilename делает из имени от клиента безопасное имя для показа:
// символы приводятся к ASCII (NFKD), разделители путей превращаются в пробелы,
// пробельные последовательности - в "_", всё кроме [A-Za-z0-9_.-] выбрасывается,
// точки и подчёркивания по краям обрезаются. Результат может быть пустым.
func SecureFilename(filename string) string {
	decomposed := norm.NFKD.String(filename)

	var b strings.Builder
	for _, r := range decomposed {
		if r < 0x80 {
			b.WriteRune(r)
		}
	}
	name := b.String()

	name = strings.NewReplacer("/", " ", `\`, " ").Replace(name)
	name = strings.Join(strings.Fields(name), "_")
	name = unsafeFilenameChars.ReplaceAllString(name, "")
	return strings.Trim(name, "._")
}
