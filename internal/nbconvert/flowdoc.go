package nbconvert

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"os"
	"path/filepath"

	"github.com/PuerkitoBio/goquery"
)

// AssembleFlowDoc builds <displayName>.html in outDir from the scroll shell
// followed by the rendered markdown, then removes the markdown file. The
// shell's <title> is set to displayName when it has one.
func AssembleFlowDoc(shellPath, outDir, mdName, displayName string) (string, error) {
	shell, err := os.ReadFile(shellPath)
	if err != nil {
		return "", fmt.Errorf("read scroll template: %w", err)
	}
	shell = titledShell(shell, displayName)

	mdPath := filepath.Join(outDir, mdName)
	md, err := os.Open(mdPath)
	if err != nil {
		return "", fmt.Errorf("open markdown: %w", err)
	}
	defer md.Close()

	name := displayName + ".html"
	out, err := os.Create(filepath.Join(outDir, name))
	if err != nil {
		return "", fmt.Errorf("create flow document: %w", err)
	}
	if _, err := out.Write(shell); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("write flow document shell: %w", err)
	}
	if _, err := io.Copy(out, md); err != nil {
		_ = out.Close()
		return "", fmt.Errorf("append markdown: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("close flow document: %w", err)
	}
	_ = md.Close()
	if err := os.Remove(mdPath); err != nil {
		return "", fmt.Errorf("remove markdown: %w", err)
	}
	return name, nil
}

// titledShell swaps the shell's <title> element in place. The rest of the
// shell is kept byte for byte since it usually ends inside an open element
// the markdown is appended to.
func titledShell(shell []byte, title string) []byte {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(shell))
	if err != nil {
		return shell
	}
	sel := doc.Find("head > title").First()
	if sel.Length() == 0 {
		return shell
	}
	old, err := goquery.OuterHtml(sel)
	if err != nil {
		return shell
	}
	i := bytes.Index(shell, []byte(old))
	if i < 0 {
		return shell
	}
	out := make([]byte, 0, len(shell)+len(title))
	out = append(out, shell[:i]...)
	out = append(out, "<title>"+html.EscapeString(title)+"</title>"...)
	return append(out, shell[i+len(old):]...)
}
