package epub

import (
	"fmt"
	"io"

	"github.com/beevik/etree"
)

const containerFile = "META-INF/container.xml"

// Rootfile is a single rootfile entry of META-INF/container.xml.
type Rootfile struct {
	FullPath  string
	MediaType string
}

// Container is OCF container document.
type Container struct {
	Version   string
	Rootfiles []Rootfile
}

// NewContainer creates container pointing to single package document.
func NewContainer(opfPath string) *Container {
	return &Container{
		Version:   "1.0",
		Rootfiles: []Rootfile{{FullPath: opfPath, MediaType: mediaTypeOPF}},
	}
}

// ReadContainer parses META-INF/container.xml.
func ReadContainer(r io.Reader) (*Container, error) {
	doc, err := readDocument(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", containerFile, err)
	}
	root := doc.Root()
	if root.Tag != "container" {
		return nil, malformed(containerFile, root.Tag, "unexpected root element")
	}
	c := &Container{Version: root.SelectAttrValue("version", "1.0")}
	rootfiles := root.SelectElement("rootfiles")
	if rootfiles == nil {
		return nil, malformed(containerFile, "container", "missing rootfiles")
	}
	for _, rf := range rootfiles.SelectElements("rootfile") {
		fp := rf.SelectAttrValue("full-path", "")
		if fp == "" {
			return nil, malformed(containerFile, "rootfile", "missing full-path attribute")
		}
		c.Rootfiles = append(c.Rootfiles, Rootfile{FullPath: fp, MediaType: rf.SelectAttrValue("media-type", "")})
	}
	if len(c.Rootfiles) == 0 {
		return nil, fmt.Errorf("%s: %w", containerFile, ErrNoRootfile)
	}
	return c, nil
}

// PackagePath returns path of the first package document.
func (c *Container) PackagePath() (string, error) {
	for _, rf := range c.Rootfiles {
		if rf.MediaType == "" || rf.MediaType == mediaTypeOPF {
			return rf.FullPath, nil
		}
	}
	return "", ErrNoRootfile
}

// Document serializes container.
func (c *Container) Document() *etree.Document {
	doc := newDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	container := doc.CreateElement("container")
	container.CreateAttr("version", c.Version)
	container.CreateAttr("xmlns", nsContainer)

	rootfiles := container.CreateElement("rootfiles")
	for _, rf := range c.Rootfiles {
		rootfile := rootfiles.CreateElement("rootfile")
		rootfile.CreateAttr("full-path", rf.FullPath)
		rootfile.CreateAttr("media-type", rf.MediaType)
	}
	doc.Indent(2)
	return doc
}
