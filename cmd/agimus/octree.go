package main

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/agimus-project/agimus/pointcloud"
)

// OctreeAction reads a point cloud file, builds an octree from it and prints a report.
func OctreeAction(c *cli.Context) error {
	resolution := c.Float64(flagResolution)
	if resolution <= 0 {
		return errors.Errorf("invalid resolution %g", resolution)
	}
	cloud, err := pointcloud.NewFromFile(c.String(flagPCD))
	if err != nil {
		return err
	}
	octree, err := pointcloud.NewOctreeFromPointCloud(cloud, resolution)
	if err != nil {
		return err
	}
	st, err := pointcloud.Statistics(cloud, r3.Vector{})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintln(c.App.Writer, octreeReport(cloud, octree, st)); err != nil {
		return err
	}
	if out := c.String(flagOut); out != "" {
		return errors.Wrap(pointcloud.WriteToFile(octree, out), "writing octree")
	}
	return nil
}

func octreeReport(cloud pointcloud.PointCloud, octree *pointcloud.BasicOctree, st pointcloud.DistanceStatistics) string {
	md := cloud.MetaData()
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Property", "Value"})
	t.AppendRows([]table.Row{
		{"Points", cloud.Size()},
		{"Leaves", len(octree.Leaves())},
		{"Resolution", fmt.Sprintf("%g", octree.Resolution())},
		{"Side length", fmt.Sprintf("%.1f", octree.SideLength())},
		{"Bounds X", fmt.Sprintf("[%.1f, %.1f]", md.MinX, md.MaxX)},
		{"Bounds Y", fmt.Sprintf("[%.1f, %.1f]", md.MinY, md.MaxY)},
		{"Bounds Z", fmt.Sprintf("[%.1f, %.1f]", md.MinZ, md.MaxZ)},
	})
	t.AppendSeparator()
	t.AppendRows([]table.Row{
		{"Distance mean", fmt.Sprintf("%.1f", st.Mean)},
		{"Distance median", fmt.Sprintf("%.1f", st.Median)},
		{"Distance min", fmt.Sprintf("%.1f", st.Min)},
		{"Distance max", fmt.Sprintf("%.1f", st.Max)},
		{"Distance std dev", fmt.Sprintf("%.1f", st.StdDev)},
	})
	return t.Render()
}
