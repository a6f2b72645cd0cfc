// Command silica-render flattens a Procreate document to an image file.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/silicaview/silica"
	"github.com/silicaview/silica/compositor"
)

func main() {
	var (
		output    = flag.String("output", "out.png", "output file (png, jpg, webp, tga, bmp, tiff)")
		software  = flag.Bool("software", false, "composite on the CPU without opening a GPU device")
		composite = flag.Bool("composite", false, "export the document's pre-rendered composite instead of flattening")
		verbose   = flag.Bool("v", false, "log progress")
	)
	flag.Parse()
	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s [flags] document.procreate\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(2)
	}

	if *verbose {
		silica.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	var (
		dev *compositor.Device
		err error
	)
	if *software {
		dev = compositor.NewSoftwareDevice()
	} else if dev, err = compositor.NewDevice(); err != nil {
		log.Fatalf("failed to open GPU device: %v", err)
	}
	defer dev.Close()

	doc, err := silica.Open(flag.Arg(0), dev)
	if err != nil {
		log.Fatalf("failed to open document: %v", err)
	}
	defer doc.Close()

	if *composite {
		img := doc.CompositeImage()
		if img == nil {
			log.Fatal("document has no composite preview")
		}
		if err := silica.Export(img, *output); err != nil {
			log.Fatal(err)
		}
		return
	}

	img, err := doc.RenderImage()
	if err != nil {
		log.Fatalf("failed to render: %v", err)
	}
	if err := silica.Export(img, *output); err != nil {
		log.Fatal(err)
	}
	log.Printf("wrote %s (%dx%d, %d layers)", *output, img.Rect.Dx(), img.Rect.Dy(), doc.LayerCount()-1)
}
