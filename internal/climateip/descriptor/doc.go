// Package descriptor loads climate-ip YAML device descriptors.
//
// A descriptor is plain YAML with two placeholders, __CLIMATE_IP_HOST__ and
// __CLIMATE_IP_TOKEN__, which are substituted line by line before the YAML
// parser sees the bytes. The parsed document is exposed as a Node, a thin
// wrapper over yaml.v3 that keeps mapping key order (operation order and
// value maps depend on it).
//
// Usage:
//
//	root, err := descriptor.LoadFile("samsungrac.yaml", descriptor.Substitutions{
//	    Host:  "192.168.1.40",
//	    Token: token,
//	})
//	if err != nil {
//	    return err
//	}
//	dev := root.Get("device")
//	fmt.Println(dev.String("name"))
package descriptor
